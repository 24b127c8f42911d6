package domain

import (
	"fmt"
)

// NotFoundError means forward geocoding returned no candidates for a query.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("location not found: %q", e.Query)
}

// UpstreamError is any transport failure, timeout, open circuit, or
// non-success HTTP response from an OpenWeather endpoint.
type UpstreamError struct {
	Op         string // geocode, reverse_geocode, weather, air_quality
	StatusCode int    // 0 when no response was received
	Message    string // upstream "message" field, when the body carried one
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: upstream status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: upstream status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": upstream request failed"
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Reason is the most specific human-readable cause available.
func (e *UpstreamError) Reason() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.StatusCode != 0:
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "upstream request failed"
	}
}

// InvalidInputError is raised for a malformed query before any network call.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
