package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "invalid request body: " + e.err.Error() }

func (e *decodeError) Unwrap() error { return e.err }

func readLimited(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// decode unmarshals a single JSON object, rejecting unknown fields.
func decode(body []byte, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return &decodeError{err: errors.New("empty body")}
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &decodeError{err: err}
	}
	if dec.More() {
		return &decodeError{err: errors.New("trailing data after JSON object")}
	}
	return nil
}
