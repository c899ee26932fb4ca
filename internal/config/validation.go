package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance; struct tag rules live on
// Options and its nested configs.
var validate = validator.New()

// Validate checks the options against their struct tag rules. The
// instrumentation key, when present, must be a GUID (8-4-4-4-12 hex); a
// missing key is legal at construction and rejected at transmit time
// instead.
func Validate(opts *Options) error {
	if err := validate.Struct(opts); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				return fmt.Errorf("option %q failed %q validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
			}
		}
		return err
	}
	return nil
}
