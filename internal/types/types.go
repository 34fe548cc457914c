// README: Shared identifiers and coordinates used across modules.
package types

import "github.com/google/uuid"

type ID string

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether p was never set; (0,0) is not a deliverable address.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

func NewID() ID {
	return ID(uuid.NewString())
}
