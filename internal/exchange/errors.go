package exchange

import "fmt"

// APIError is returned when the exchange rejects a request or answers with a
// non-success status.
type APIError struct {
	Method  string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: http %d: %s", e.Method, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}
