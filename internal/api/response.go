package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Synthetic statuses for outcomes where no HTTP response was received.
const (
	// StatusConnectionFailed marks a transport failure.
	StatusConnectionFailed = 599
	// StatusTimeout marks a request that exceeded the gateway timeout.
	StatusTimeout = http.StatusRequestTimeout
)

// Response is the normalized outcome of every gateway call.
type Response struct {
	Status int
	Data   json.RawMessage
	Error  bool

	synthetic bool
}

// ErrorPayload is the machine readable body of an error response.
type ErrorPayload struct {
	Code     string `json:"error"`
	Message  string `json:"error_message,omitempty"`
	Internal bool   `json:"internal,omitempty"`
}

// StatusError is returned by Response.Err for failed responses.
type StatusError struct {
	Status  int
	Payload ErrorPayload
}

func (e *StatusError) Error() string {
	if e.Payload.Code != "" {
		return fmt.Sprintf("api: status %d: %s", e.Status, e.Payload.Code)
	}
	return fmt.Sprintf("api: status %d", e.Status)
}

// ErrNoContent is returned by Decode on a response without a body.
var ErrNoContent = errors.New("api: response has no content")

func connectionFailure() Response {
	return Response{
		Status:    StatusConnectionFailed,
		Data:      json.RawMessage(`{"error":"connection"}`),
		Error:     true,
		synthetic: true,
	}
}

func timeoutFailure() Response {
	return Response{
		Status:    StatusTimeout,
		Data:      json.RawMessage(`{"error":"timeout"}`),
		Error:     true,
		synthetic: true,
	}
}

// OK reports a 2xx outcome.
func (r Response) OK() bool { return !r.Error }

// Synthetic reports whether the response was fabricated by the gateway
// because no HTTP response arrived.
func (r Response) Synthetic() bool { return r.synthetic }

// Decode unmarshals the body into v.
func (r Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return ErrNoContent
	}
	return json.Unmarshal(r.Data, v)
}

// ErrorPayload decodes the error body. Missing or malformed bodies yield a
// zero payload.
func (r Response) ErrorPayload() ErrorPayload {
	var p ErrorPayload
	if r.Error && len(r.Data) > 0 {
		_ = json.Unmarshal(r.Data, &p)
	}
	return p
}

// Err returns a *StatusError for failed responses and nil otherwise.
func (r Response) Err() error {
	if !r.Error {
		return nil
	}
	return &StatusError{Status: r.Status, Payload: r.ErrorPayload()}
}

// StatusOf extracts the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
