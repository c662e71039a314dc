package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessResponse_OmitsError(t *testing.T) {
	raw, err := json.Marshal(SuccessResponse("Booking", map[string]string{"id": "bk-1"}))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, true, got["success"])
	assert.NotContains(t, got, "error")
	assert.Equal(t, "bk-1", got["data"].(map[string]any)["id"])
}

func TestErrorResponse_OmitsData(t *testing.T) {
	resp := ErrorResponse("GetBooking failed", "booking not found")
	assert.False(t, resp.Success)
	assert.Nil(t, resp.Data)
	assert.Equal(t, "booking not found", resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}
