package validate

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"go-shipper/app/model"
)

// RegisterValidation installs the custom binding tags used by the request
// structs.
func RegisterValidation() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("recurrence", recurrence); err != nil {
		return err
	}
	return v.RegisterValidation("commit_hash", commitHash)
}

func recurrence(fl validator.FieldLevel) bool {
	switch model.Recurrence(fl.Field().String()) {
	case "", model.RecurrenceNone, model.RecurrenceDaily, model.RecurrenceWeekly, model.RecurrenceMonthly:
		return true
	}
	return false
}

func commitHash(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
