package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/pms/channelsync/internal/interfaces/http/dto"
)

// SetupValidator makes binding errors report json/form field names
func SetupValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
	}
}

// FormatValidationErrors converts binding errors into a validation response.
// Errors that are not field errors (malformed JSON) yield no details.
func FormatValidationErrors(err error, requestID string) dto.Response {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return dto.NewValidationErrorResponse("Request validation failed", requestID, nil)
	}
	details := make([]dto.ValidationDetail, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, dto.ValidationDetail{Field: fe.Field(), Message: getValidationMessage(fe)})
	}
	return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
}

// HandleValidationError writes a 400 validation response
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, requestIDFrom(c)))
}

// validationMessages maps a validator tag to its message prefix; the tag
// parameter is appended.
var validationMessages = map[string]string{
	"oneof":    "Must be one of: ",
	"gte":      "Must be greater than or equal to ",
	"lte":      "Must be less than or equal to ",
	"datetime": "Must be a date in format ",
}

func getValidationMessage(fe validator.FieldError) string {
	switch tag := fe.Tag(); tag {
	case "required":
		return "This field is required"
	case "uuid":
		return "Invalid UUID format"
	case "min", "max":
		bound := "at least "
		if tag == "max" {
			bound = "at most "
		}
		if fe.Kind() == reflect.String {
			return "Must be " + bound + fe.Param() + " characters"
		}
		return "Must be " + bound + fe.Param()
	default:
		if prefix, ok := validationMessages[tag]; ok {
			return prefix + fe.Param()
		}
		return "Invalid value"
	}
}
