package config

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	return validate.Struct(c)
}
