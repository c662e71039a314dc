package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount_UnmarshalMajorUnits(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Amount
	}{
		{"whole number", `42`, 4200},
		{"fraction", `42.5`, 4250},
		{"quoted", `"21.00"`, 2100},
		{"null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d BookingDraft
			require.NoError(t, json.Unmarshal([]byte(`{"seats":1,"total_amount":`+tt.raw+`}`), &d))
			assert.Equal(t, tt.want, d.TotalAmount)
		})
	}

	var d BookingDraft
	assert.Error(t, json.Unmarshal([]byte(`{"total_amount":"lots"}`), &d))
}

func TestAmount_MarshalMajorUnits(t *testing.T) {
	raw, err := json.Marshal(BookingDraft{EventID: "evt-1", Seats: 2, TotalAmount: 4250})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"total_amount":42.50`)

	assert.Equal(t, int64(4250), BookingDraft{TotalAmount: 4250}.Booking().TotalAmount)
}
