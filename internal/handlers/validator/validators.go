package validator

import (
	"github.com/go-playground/validator/v10"
)

type ValidationRule struct {
	Rule func(v *validator.Validate)
}

// Validator wraps go-playground's validator with the custom rules registered on it.
type Validator struct {
	validator *validator.Validate
	rules     []ValidationRule
}

func NewValidator() *Validator {
	return &Validator{validator: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *Validator) Register(rules ...ValidationRule) {
	for _, validationRule := range rules {
		validationRule.Rule(v.validator)
	}
	v.rules = append(v.rules, rules...)
}

// Struct validates s. Failures are returned as *ErrInvalidRequest.
func (v *Validator) Struct(s any) error {
	if err := v.validator.Struct(s); err != nil {
		return NewErrInvalidRequest("%s", Describe(err))
	}
	return nil
}
