package objectstore

import (
	"errors"
	"fmt"
)

// maxErrorBody caps the upstream response body kept for diagnostics.
const maxErrorBody = 500

// ErrNoCredentials is returned when the credentials provider yields nothing usable.
var ErrNoCredentials = errors.New("object store credentials not configured")

// UpstreamError reports a non-2xx answer from the object store.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("object store %s failed with status %d", e.Op, e.Status)
}

// ParseError reports a listing body that does not match the expected shape.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse listing: " + e.Reason
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(body)
}
