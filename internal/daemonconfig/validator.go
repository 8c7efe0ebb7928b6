package daemonconfig

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	levelPattern = regexp.MustCompile(`^(debug|info|warn|error)$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("log_level", func(fl validator.FieldLevel) bool {
			return levelPattern.MatchString(fl.Field().String())
		})
		validateInst = v
	})
	return validateInst
}
