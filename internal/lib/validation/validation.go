package validation

import (
	"unicode"

	"github.com/go-playground/validator/v10"
)

// New returns a validator with the service's custom rules registered.
func New() *validator.Validate {
	v := validator.New()

	// Registration cannot fail for a plain func; ignore the error like the
	// validator docs do.
	_ = v.RegisterValidation("strongpass", strongPassword)

	return v
}

// strongPassword enforces the signup password policy: 8-256 characters with
// at least one lowercase letter, one uppercase letter, one digit and one
// special character.
func strongPassword(fl validator.FieldLevel) bool {
	pass := fl.Field().String()
	if len(pass) < 8 || len(pass) > 256 {
		return false
	}

	var lower, upper, digit, special bool
	for _, r := range pass {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	return lower && upper && digit && special
}
