package models

import "time"

// RatelimitConfig holds the rate for one named bucket (e.g. "2-M", "10-S").
type RatelimitConfig struct {
	Bucket    string    `json:"bucket"`
	Rate      string    `json:"rate"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
