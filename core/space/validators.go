package space

import (
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/classync/classync/core"
)

var (
	joinCodeTag   = "joincode"
	joinCodeText  = "invalid join code"
	joinCodeRegex = regexp.MustCompile(`^[A-Z0-9]{8}$`)
)

// InitValidators registers the space validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(joinCodeTag, joinCodeValidation)
	core.RegisterCustomTranslation(validate, translator, joinCodeTag, joinCodeText)
}

func joinCodeValidation(fl validator.FieldLevel) bool {
	return joinCodeRegex.MatchString(fl.Field().String())
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(core.CleanString(code), "-", ""))
}
