package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Rrens/checkpoint-recovery/internal/api/response"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler should continue.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, "invalid request body")
		return false
	}

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]response.FieldError, len(verrs))
			for i, fe := range verrs {
				fields[i] = response.FieldError{
					Field: strings.ToLower(fe.Field()),
					Rule:  fe.Tag(),
				}
			}
			response.ValidationFailed(w, fields)
			return false
		}
		response.BadRequest(w, err.Error())
		return false
	}

	return true
}
