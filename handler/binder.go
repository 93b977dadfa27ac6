package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// MaxJSONBody caps request bodies decoded by BindJSON.
const MaxJSONBody = 1 << 20

// BindJSON decodes a JSON request body into v.
func BindJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrBadRequest.WithMessage(ErrEmptyBody.Error())
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxJSONBody))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return ErrRequestEntityTooLarge
		case errors.Is(err, io.EOF):
			return ErrBadRequest.WithMessage(ErrEmptyBody.Error())
		default:
			return ErrBadRequest.WithMessage("malformed JSON body")
		}
	}
	return nil
}
