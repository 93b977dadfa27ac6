// Package handler adapts typed request handlers to net/http.
//
// A handler receives the request and a decoded request value and returns a
// Response; Wrap takes care of decoding, rendering and error mapping:
//
//	r.Post("/checkout", handler.Wrap(h.checkout, handler.WithBinder[checkoutRequest](handler.BindJSON)))
package handler

import (
	"errors"
	"net/http"
)

// Response renders itself to the client.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// HandlerFunc handles a request with an already decoded body.
type HandlerFunc[R any] func(r *http.Request, req R) Response

// Bind decodes r into v.
type Bind func(r *http.Request, v any) error

// ErrorHandler writes err to the client.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Empty is the request type for handlers that take no input.
type Empty struct{}

// WrapOption configures Wrap.
type WrapOption[R any] func(*wrapConfig[R])

type wrapConfig[R any] struct {
	binders      []Bind
	errorHandler ErrorHandler
}

// WithBinder appends a binder. Binders run in order.
func WithBinder[R any](b Bind) WrapOption[R] {
	return func(c *wrapConfig[R]) {
		if b != nil {
			c.binders = append(c.binders, b)
		}
	}
}

// WithErrorHandler replaces the default error renderer.
func WithErrorHandler[R any](h ErrorHandler) WrapOption[R] {
	return func(c *wrapConfig[R]) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

// Wrap converts h into an http.HandlerFunc.
func Wrap[R any](h HandlerFunc[R], opts ...WrapOption[R]) http.HandlerFunc {
	cfg := &wrapConfig[R]{errorHandler: DefaultErrorHandler}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req R
		for _, bind := range cfg.binders {
			if err := bind(r, &req); err != nil {
				cfg.errorHandler(w, r, err)
				return
			}
		}

		resp := h(r, req)
		if resp == nil {
			cfg.errorHandler(w, r, ErrNilResponse)
			return
		}
		if err := resp.Render(w, r); err != nil {
			cfg.errorHandler(w, r, err)
		}
	}
}

// DefaultErrorHandler renders HTTPError values with their status code and
// everything else as 500 without leaking the error text.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr HTTPError
	if !errors.As(err, &httpErr) {
		httpErr = ErrInternalServerError
	}
	_ = JSONError(httpErr).Render(w, r)
}
