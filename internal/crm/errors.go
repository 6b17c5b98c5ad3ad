package crm

import "errors"

var (
	// ErrNotFound is returned both when a record does not exist and when it
	// belongs to another tenant, so the two cases cannot be told apart.
	ErrNotFound = errors.New("crm: not found")

	ErrInvalidInput = errors.New("crm: invalid input")
)
