// Package forms holds the request schemas of the HTTP API and the validator
// engine that gin binding runs them through.
package forms

import (
	"reflect"
	"regexp"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var usernameRE = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// DefaultValidator is a lazily initialised binding.StructValidator with the
// project's custom tags registered.
type DefaultValidator struct {
	once     sync.Once
	validate *validator.Validate
	// now is used by the birthdate tag; nil means time.Now.
	now func() time.Time
}

var _ binding.StructValidator = &DefaultValidator{}

// ValidateStruct validates obj when it is a struct or a pointer to one.
func (v *DefaultValidator) ValidateStruct(obj any) error {
	if kindOfData(obj) != reflect.Struct {
		return nil
	}
	v.lazyinit()
	return v.validate.Struct(obj)
}

// Engine returns the underlying validator.
func (v *DefaultValidator) Engine() any {
	v.lazyinit()
	return v.validate
}

func (v *DefaultValidator) lazyinit() {
	v.once.Do(func() {
		v.validate = validator.New()
		v.validate.SetTagName("binding")

		_ = v.validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernameRE.MatchString(fl.Field().String())
		})
		_ = v.validate.RegisterValidation("birthdate", func(fl validator.FieldLevel) bool {
			d, err := ParseDate(fl.Field().String())
			if err != nil || d == nil {
				return false
			}
			now := time.Now
			if v.now != nil {
				now = v.now
			}
			return d.Before(now())
		})
	})
}

// kindOfData returns the Kind of data, looking through one pointer.
func kindOfData(data any) reflect.Kind {
	value := reflect.ValueOf(data)
	valueType := value.Kind()

	if valueType == reflect.Ptr {
		valueType = value.Elem().Kind()
	}
	return valueType
}
