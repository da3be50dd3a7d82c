package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/homecare-api/internal/model"
	apperrors "github.com/jwalitptl/homecare-api/pkg/errors"
)

var customValidators = map[string]validator.Func{
	"booking_date": func(fl validator.FieldLevel) bool {
		_, err := time.Parse("2006-01-02", fl.Field().String())
		return err == nil
	},
	"clock_time": func(fl validator.FieldLevel) bool {
		_, err := time.Parse("15:04", fl.Field().String())
		return err == nil
	},
	"consent_type": func(fl validator.FieldLevel) bool {
		return model.ConsentType(fl.Field().String()).Valid()
	},
}

var errorMessages = map[string]string{
	"required":     "is required",
	"max":          "is too long",
	"gt":           "must be greater than %s",
	"gte":          "must be at least %s",
	"oneof":        "must be one of: %s",
	"booking_date": "must be a date formatted YYYY-MM-DD",
	"clock_time":   "must be a time formatted HH:MM",
	"consent_type": "is not a known consent type",
}

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags on gin's validator and
// reports fields by their JSON name.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		for tag, fn := range customValidators {
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic(err)
			}
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
}

// BindingError converts a gin binding failure into an InvalidRequest error
// listing the offending fields.
func BindingError(err error) *apperrors.AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.BadRequest("malformed request body", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		msg, ok := errorMessages[e.Tag()]
		if !ok {
			msg = "is invalid"
		}
		if strings.Contains(msg, "%s") {
			msg = fmt.Sprintf(msg, e.Param())
		}
		fields[e.Field()] = msg
	}
	return apperrors.BadRequest("request validation failed", err).WithDetail("fields", fields)
}
