package photos

import "errors"

// Errors returned by Service.
var (
	ErrMissingToken = errors.New("missing app token")
	ErrMissingFile  = errors.New("missing file")
	ErrFileTooLarge = errors.New("file too large")
)
