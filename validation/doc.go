// Package validation checks configuration structs against their
// `validate` struct tags using go-playground/validator.
//
//	type Config struct {
//	    Capacity int    `validate:"gt=0"`
//	    Dir      string `validate:"required"`
//	}
//	err := validation.Validate(cfg)
//
// Failures are reported as an INVALID_ARGUMENT AppError whose details list
// every offending field.
package validation
