// Package validator wraps go-playground/validator with the rules and
// messages used by account and profile payloads.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// BcryptMaxBytes is the longest password bcrypt accepts.
const BcryptMaxBytes = 72

var (
	once     sync.Once
	validate *validator.Validate

	rulesMu sync.Mutex
	rules   = map[string]rule{}
)

type rule struct {
	check   func(string) bool
	message string
}

// ValidationError is a single field failure as reported to API clients.
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ValidationErrors collects every field failure of one payload.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, err := range v {
		parts[i] = err.Field + ": " + err.Message
	}
	return strings.Join(parts, "; ")
}

// RegisterRule adds a string rule under tag. Packages owning a domain type
// call it from init, before any payload is validated.
func RegisterRule(tag, message string, check func(string) bool) {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	rules[tag] = rule{check: check, message: message}
	if validate != nil {
		mustRegister(validate, tag, check)
	}
}

// ValidateStruct validates s and returns ValidationErrors on field failures.
func ValidateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		failures := make(ValidationErrors, 0, len(ve))
		for _, fe := range ve {
			failures = append(failures, ValidationError{
				Field:   fe.Field(),
				Tag:     fe.Tag(),
				Param:   fe.Param(),
				Message: message(fe),
			})
		}
		return failures
	}

	return err
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "bcrypt_max":
		return fmt.Sprintf("must be at most %d bytes", BcryptMaxBytes)
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	rulesMu.Lock()
	defer rulesMu.Unlock()
	if r, ok := rules[fe.Tag()]; ok {
		return r.message
	}
	return "failed on " + fe.Tag()
}

func mustRegister(v *validator.Validate, tag string, check func(string) bool) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return check(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("validator: register %q: %v", tag, err))
	}
}

func getValidator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		mustRegister(v, "bcrypt_max", func(s string) bool {
			return len(s) <= BcryptMaxBytes
		})

		rulesMu.Lock()
		for tag, r := range rules {
			mustRegister(v, tag, r.check)
		}
		validate = v
		rulesMu.Unlock()
	})
	return validate
}
