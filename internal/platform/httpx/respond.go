// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/freshline/internal/shared"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type          string            `json:"type,omitempty"`
	Title         string            `json:"title"`
	Status        int               `json:"status"`
	Detail        string            `json:"detail,omitempty"`
	CurrentStatus string            `json:"current_status,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	if err := decodeBody(r, target); err != nil {
		return shared.Validationf("malformed request body: %v", err)
	}
	return nil
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return io.EOF
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeAndValidate decodes the body and runs struct validation tags.
func DecodeAndValidate(r *http.Request, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return err
	}
	return Validate(target)
}

// DecodeOptional decodes and validates a body that may be absent. An empty
// body, with or without a declared length, leaves target untouched.
func DecodeOptional(r *http.Request, target any) error {
	err := decodeBody(r, target)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return shared.Validationf("malformed request body: %v", err)
	}
	return Validate(target)
}

// Validate runs validator tags on target and converts failures to shared.ErrValidation.
func Validate(target any) error {
	if err := validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			parts := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return shared.Validationf("%s", strings.Join(parts, "; "))
		}
		return shared.Validationf("%v", err)
	}
	return nil
}
