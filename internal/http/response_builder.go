// Package http serves the finboard JSON API.
//
// This file holds a small builder for JSON responses so handlers set status,
// headers and body in one place.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode  int
	headers     map[string]string
	body        any
	raw         []byte
	contentType string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode:  http.StatusOK,
		headers:     make(map[string]string),
		contentType: "application/json",
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	if value != "" {
		b.headers[name] = value
	}
	return b
}

// JSON sets a value to be encoded as the body.
func (b *JSONResponseBuilder) JSON(v any) *JSONResponseBuilder {
	b.body = v
	b.raw = nil
	return b
}

// Text sets a plain body with the given content type.
func (b *JSONResponseBuilder) Text(contentType string, body []byte) *JSONResponseBuilder {
	b.contentType = contentType
	b.raw = body
	b.body = nil
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	payload := b.raw
	if b.body != nil {
		data, err := json.Marshal(b.body)
		if err != nil {
			slog.Error("Failed to encode response", "component", "http", "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"failed to encode response"}`))
			return
		}
		payload = append(data, '\n')
	}
	if len(payload) > 0 || b.body != nil {
		w.Header().Set("Content-Type", b.contentType)
	}
	w.WriteHeader(b.statusCode)
	if len(payload) > 0 {
		_, _ = w.Write(payload)
	}
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).JSON(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// MethodNotAllowedError creates a 405 response listing the allowed methods.
func MethodNotAllowedError(allowedMethods string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").
		Header("Allow", allowedMethods)
}

// NoContent creates an empty 204 response.
func NoContent() *JSONResponseBuilder {
	return NewJSONResponse().Status(http.StatusNoContent)
}
