package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is a scheduled show. Price is stored in minor units (cents).
type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID          string    `bun:"id,pk" json:"id"`
	Title       string    `bun:"title,notnull" json:"title"`
	Description string    `bun:"description" json:"description,omitempty"`
	StartDate   time.Time `bun:"start_date,notnull" json:"start_date"`
	StartTime   string    `bun:"start_time" json:"start_time"`
	EndDate     time.Time `bun:"end_date,nullzero" json:"end_date,omitempty"`
	EndTime     string    `bun:"end_time" json:"end_time,omitempty"`
	Price       int64     `bun:"price,notnull" json:"price"`
	ImageURL    string    `bun:"image_url,nullzero" json:"image_url,omitempty"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
