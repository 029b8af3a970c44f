package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 64 << 10

// ResponseError describes a non-2xx answer from a remote API.
type ResponseError struct {
	Service string
	Status  int
	// Code is the remote's own error code, if its body carried one.
	Code    string
	Message string
}

func (e *ResponseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s returned status %d (code %s): %s", e.Service, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.Status, e.Message)
}

// Temporary reports whether retrying later could succeed.
func (e *ResponseError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// errorBody matches the flat {"code": ..., "message": "..."} body most
// payment APIs return. code may be a number or a string.
type errorBody struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

// ParseResponseError reads and closes the body of a non-2xx response and
// returns it as a *ResponseError. Structured bodies keep their code and
// message; anything else becomes the trimmed raw body.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	re := &ResponseError{Service: serviceName, Status: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		re.Message = fmt.Sprintf("failed to read body: %v", err)
		return re
	}

	var body errorBody
	if json.Unmarshal(raw, &body) == nil && (body.Message != "" || len(body.Code) > 0) {
		re.Code = strings.Trim(string(body.Code), `"`)
		re.Message = body.Message
		return re
	}

	re.Message = strings.TrimSpace(string(raw))
	if re.Message == "" {
		re.Message = http.StatusText(resp.StatusCode)
	}
	return re
}
