// Package validator installs scheduling-specific rules on gin's binding
// validator so request structs can declare them as tags.
package validator

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/telehealth-api/internal/model"
)

// RegisterDomainRules wires the custom rules into the shared binding engine.
// Call once at startup, before the router accepts traffic.
func RegisterDomainRules() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("blockreason", validBlockReason); err != nil {
		return err
	}
	return v.RegisterValidation("weekday", validWeekday)
}

func validBlockReason(fl validator.FieldLevel) bool {
	return model.BlockTimeReason(fl.Field().String()).Valid()
}

func validWeekday(fl validator.FieldLevel) bool {
	switch model.Weekday(fl.Field().String()) {
	case model.Monday, model.Tuesday, model.Wednesday, model.Thursday,
		model.Friday, model.Saturday, model.Sunday:
		return true
	}
	return false
}
