package canvas

import (
	"encoding/json"
	"io"
	"net/http"
)

// Response is the parsed envelope of one HTTP response: status, headers,
// the raw body text, and the decoded JSON body when the text parses.
// JSON and ParseErr are mutually exclusive; exactly one is set whenever
// Text is non-empty. A Response is immutable after construction.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// Text is the raw response body.
	Text string

	// JSON is the decoded body (nil if Text is empty or did not parse).
	JSON any

	// ParseErr is the decode failure (nil if Text is empty or parsed).
	ParseErr error
}

// NewResponse reads and closes the body of resp and builds an envelope.
func NewResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Cause: err}
	}

	r := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Text:       string(body),
	}

	if len(body) > 0 {
		var parsed any
		if err := json.Unmarshal(body, &parsed); err != nil {
			r.ParseErr = err
		} else {
			r.JSON = parsed
		}
	}

	return r, nil
}

// List returns the body as a JSON array, or ok=false when the body is
// not a list (single object, scalar, empty, or unparseable).
func (r *Response) List() ([]json.RawMessage, bool) {
	data := []byte(r.Text)
	if r.ParseErr != nil || len(data) == 0 {
		return nil, false
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false
	}
	return items, true
}
