package httpgin

import (
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var seatPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._/-]{0,31}$`)

// seatValidator accepts labels such as "A-12" or "Balcony 3/7".
var seatValidator validator.Func = func(fl validator.FieldLevel) bool {
	return seatPattern.MatchString(fl.Field().String())
}

var registerOnce sync.Once

func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("seat", seatValidator)
		}
	})
}
