package locator

import "fmt"

// TransportError reports a failure to complete the HTTP request/response
// cycle: DNS resolution, connection, timeout, cancellation, body read or a
// non-2xx status from the service.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("geolocation request to %s failed with status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("geolocation request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResponseFormatError reports a response body that could not be decoded
// into a GeoLocation.
type ResponseFormatError struct {
	URL  string
	Body string
	Err  error
}

func (e *ResponseFormatError) Error() string {
	return fmt.Sprintf("unexpected geolocation response from %s: %v", e.URL, e.Err)
}

func (e *ResponseFormatError) Unwrap() error {
	return e.Err
}
