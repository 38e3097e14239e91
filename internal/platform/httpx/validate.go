package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldErrors flattens validator errors into field → rule messages.
func FieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out[lowerFirst(fe.Field())] = msg
	}
	return out
}

// ValidationProblem writes a 400 problem listing the failed fields.
func ValidationProblem(w http.ResponseWriter, err error) {
	fields := FieldErrors(err)
	detail := err.Error()
	if fields != nil {
		detail = fmt.Sprintf("%d field(s) invalid", len(fields))
	}
	w.Header().Set("Content-Type", "application/problem+json")
	JSONStatus(w, http.StatusBadRequest, ProblemDetail{
		Title:  "Validation Failed",
		Status: http.StatusBadRequest,
		Detail: detail,
		Errors: fields,
	})
}

// JSONStatus writes data without overriding a Content-Type already set.
func JSONStatus(w http.ResponseWriter, status int, data any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
