package validation

import (
	"errors"
	"strings"

	"ticketflow/internal/shared/apperror"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct validates s against its `validate` tags. Failures are BadRequest
// errors listing the offending fields.
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.BadRequest(err.Error())
	}

	fields := make(map[string]string, len(fieldErrs))
	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fe.Tag()
		names = append(names, fe.Field())
	}

	badRequest := apperror.BadRequest("invalid " + strings.Join(names, ", "))
	badRequest.Meta = apperror.Meta{"fields": fields}
	return badRequest
}
