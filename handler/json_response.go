package handler

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSON renders v as the response body. A nil pointer renders as null.
func JSON(v any) Response {
	return jsonResponse{status: http.StatusOK, body: v}
}

// JSONStatus is JSON with an explicit status code.
func JSONStatus(status int, v any) Response {
	return jsonResponse{status: status, body: v}
}

// JSONError renders err as ErrorBody with the status of err.
func JSONError(err HTTPError) Response {
	msg := err.Message
	if msg == "" {
		msg = http.StatusText(err.Code)
	}
	return jsonResponse{status: err.Code, body: ErrorBody{Message: msg, Error: err.Key}}
}

type textResponse struct {
	status int
	text   string
}

func (t textResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(t.status)
	_, err := w.Write([]byte(t.text))
	return err
}

// Text renders a plain text 200 response.
func Text(s string) Response {
	return textResponse{status: http.StatusOK, text: s}
}

// Error defers rendering to the error handler of Wrap.
func Error(err error) Response {
	return errorResponse{err: err}
}

type errorResponse struct{ err error }

func (e errorResponse) Render(http.ResponseWriter, *http.Request) error { return e.err }
