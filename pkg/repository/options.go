package repository

import "errors"

const (
	// DefaultLimit applies when the caller does not request a row count.
	DefaultLimit = 100
	// MaxLimit caps a single page.
	MaxLimit = 1000
)

// ListOptions defines offset pagination for listing entities
type ListOptions struct {
	Offset int `json:"offset"` // Number of records to skip
	Limit  int `json:"limit"`  // Maximum number of records to return
}

// Normalize fills in defaults and validates the bounds
func (o *ListOptions) Normalize() error {
	if o.Offset < 0 {
		return errors.New("offset must be non-negative")
	}
	if o.Limit < 0 {
		return errors.New("limit must be non-negative")
	}
	if o.Limit == 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	return nil
}
