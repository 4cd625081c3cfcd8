// Package httpx holds the JSON plumbing shared by the HTTP handlers:
// response encoding, RFC7807 problem responses and bounded request
// decoding.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
)

// maxBodyBytes bounds request bodies. Authorization payloads are a few
// identifiers and a permission key; anything near this limit is abuse.
const maxBodyBytes = 1 << 20

// ProblemDetail is the RFC7807 error body every failure response uses.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes data as a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem writes an RFC7807 problem response under its registered media
// type.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes the request body into target. The body is size
// capped and must contain exactly one JSON value.
func DecodeJSON(r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(target); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("httpx: trailing data after JSON value")
	}
	return nil
}
