package model

import (
	"sync"

	"github.com/Laisky/errors/v2"
	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the definition is runnable. The returned error wraps
// ErrInvalidDefinition.
func (d *TestDefinition) Validate() error {
	if err := getValidator().Struct(d); err != nil {
		return errors.Wrapf(ErrInvalidDefinition, "%s", err.Error())
	}
	return nil
}
