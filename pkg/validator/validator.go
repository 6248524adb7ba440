package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	qrTokenPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)
	bloodTypes     = map[string]struct{}{
		"A+": {}, "A-": {}, "B+": {}, "B-": {}, "AB+": {}, "AB-": {}, "O+": {}, "O-": {},
	}
)

const DateLayout = "2006-01-02"

// IsQRToken reports whether s is an acceptable QR token.
func IsQRToken(s string) bool {
	return qrTokenPattern.MatchString(s)
}

// Register installs the custom tags on v and makes error fields use form names.
func Register(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	rules := map[string]validator.Func{
		"qrtoken": func(fl validator.FieldLevel) bool {
			return IsQRToken(fl.Field().String())
		},
		"bloodtype": func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			if s == "" {
				return true
			}
			_, ok := bloodTypes[strings.ToUpper(s)]
			return ok
		},
		"isodate": func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			if s == "" {
				return true
			}
			_, err := time.Parse(DateLayout, s)
			return err == nil
		},
	}

	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s: %w", tag, err)
		}
	}
	return nil
}

// RegisterWithGin installs the custom tags on gin's binding engine.
func RegisterWithGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected binding engine")
	}
	return Register(v)
}

var messages = map[string]string{
	"required":  "%s is required",
	"email":     "%s must be a valid email",
	"min":       "%s is too short",
	"max":       "%s is too long",
	"qrtoken":   "%s is not a valid QR code",
	"bloodtype": "%s must be one of A+, A-, B+, B-, AB+, AB-, O+, O-",
	"isodate":   "%s must be a date in YYYY-MM-DD format",
}

// Describe turns a binding error into a single user-facing sentence.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		format, ok := messages[fe.Tag()]
		if !ok {
			format = "%s is invalid"
		}
		return fmt.Sprintf(format, fe.Field())
	}
	return "invalid form submission"
}
