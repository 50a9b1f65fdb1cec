// Package validate holds the shared struct validator.
package validate

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validate returns the process wide validator.
func Validate() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
	})
	return validate
}
