package core

import "time"

// Dimensions is the canvas size reported by the API.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether (x, y) lies on a canvas of these dimensions.
func (d Dimensions) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < d.Width && y < d.Height
}

// PlacementStatus describes the outcome of a put-pixel attempt.
type PlacementStatus string

const (
	PlacementPlaced  PlacementStatus = "placed"
	PlacementSkipped PlacementStatus = "skipped"
	PlacementFailed  PlacementStatus = "failed"
)

// Placement is one journaled put-pixel attempt.
type Placement struct {
	ID         string          `json:"id"`
	X          int             `json:"x"`
	Y          int             `json:"y"`
	Color      Color           `json:"color"`
	Status     PlacementStatus `json:"status"`
	Message    string          `json:"message,omitempty"`
	TokenIndex int             `json:"token_index"`
	PlacedAt   time.Time       `json:"placed_at"`
}
