package response

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	// UUID correlates a server fault with its log entry. Set only on faults.
	UUID string `json:"uuid,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

func OK() Response {
	return Response{Status: StatusOK}
}

func OKMessage(msg string) Response {
	return Response{Status: StatusOK, Message: msg}
}

func Error(msg string) Response {
	return Response{Status: StatusError, Message: msg}
}

// Fault builds a generic failure response carrying a fresh correlation id.
// The id is returned alongside so the caller can log it with full context;
// no internal detail crosses the boundary.
func Fault(msg string) (Response, string) {
	id := uuid.NewString()
	return Response{Status: StatusError, Message: msg, UUID: id}, id
}

func ValidationError(errs validator.ValidationErrors) Response {
	var msgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", err.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("field %s is not a valid email", err.Field()))
		case "strongpass":
			msgs = append(msgs, fmt.Sprintf(
				"field %s must be 8-256 characters and contain one uppercase letter, one lowercase letter, one number and one special character",
				err.Field()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("field %s is too long", err.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}

	return Error(strings.Join(msgs, ", "))
}
