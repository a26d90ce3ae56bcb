package settings

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nulzo/streamchat/pkg/api"
)

// ErrInvalidValue is wrapped by the ConfigurationError Validate returns for
// out-of-range or malformed fields.
var ErrInvalidValue = errors.New("invalid value")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	RegisterProviderValidation(v)
	return v
}

// RegisterProviderValidation adds the "provider" tag to v.
func RegisterProviderValidation(v *validator.Validate) {
	_ = v.RegisterValidation("provider", func(fl validator.FieldLevel) bool {
		return api.ProviderID(fl.Field().String()).Valid()
	})
}

// Validate checks the provider-independent shape of s. Credential presence is
// checked per provider by the caller. Failures are *api.ConfigurationError.
func Validate(s api.Settings) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &api.ConfigurationError{Provider: s.Provider, Err: err}
	}

	fe := verrs[0]
	if fe.Field() == "provider" {
		return &api.ConfigurationError{Provider: s.Provider, Err: api.ErrUnsupportedProvider}
	}
	return &api.ConfigurationError{
		Provider: s.Provider,
		Field:    fe.Field(),
		Err:      fmt.Errorf("%w: %v does not satisfy %s", ErrInvalidValue, fe.Value(), tagDescription(fe)),
	}
}

func tagDescription(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
