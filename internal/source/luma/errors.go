package luma

import "fmt"

// APIError is returned for every non-2xx response. The client never retries.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("luma api error: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("luma api error: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) UpstreamStatus() int {
	return e.StatusCode
}

func (e *APIError) UpstreamCode() string {
	return e.Code
}
