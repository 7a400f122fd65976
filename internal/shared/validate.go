package shared

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// ValidateStruct runs struct-tag validation and converts failures into a
// FieldErrors map keyed by field name. Returns nil when the value is valid.
func ValidateStruct(v *validator.Validate, s any) FieldErrors {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	fields := FieldErrors{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = "failed " + fe.Tag() + " validation"
		}
	} else {
		fields["body"] = err.Error()
	}
	return fields
}
