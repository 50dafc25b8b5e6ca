package task

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/classync/classync/core"
)

var (
	fileExtTag   = "fileext"
	fileExtText  = "file types must be extensions such as pdf or docx"
	fileExtRegex = regexp.MustCompile(`^[a-z0-9]{1,10}$`)
)

// InitValidators registers the task validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(fileExtTag, fileExtValidation)
	core.RegisterCustomTranslation(validate, translator, fileExtTag, fileExtText)
}

func fileExtValidation(fl validator.FieldLevel) bool {
	return fileExtRegex.MatchString(fl.Field().String())
}
