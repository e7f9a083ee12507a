package core

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	meaningfulTag  = "meaningful"
	meaningfulText = "{0} must contain actual text"

	roleTag  = "role"
	roleText = "{0} must be one of: teacher, assistant"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// ContentRules decides which free-text contents are worth submitting.
type ContentRules struct {
	MinRunes     int      // minimum letters/digits
	Placeholders []string // input hints that must not count as content
}

// Meaningful reports whether s holds real content: not a placeholder, not pure punctuation,
// and at least MinRunes letters or digits.
func (r ContentRules) Meaningful(s string) bool {
	s = CleanString(s)
	if s == "" {
		return false
	}
	for _, ph := range r.Placeholders {
		if ph != "" && s == CleanString(ph) {
			return false
		}
	}
	min := r.MinRunes
	if min < 1 {
		min = 1
	}
	var count int
	for _, char := range s {
		if unicode.IsLetter(char) || unicode.IsNumber(char) {
			count++
		}
	}
	return count >= min
}

// NewValidator returns a validator and its english translator, set up for our structs.
func NewValidator(rules ContentRules) (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator, _ := ut.New(en.New()).GetTranslator("en")
	InitValidators(validate, translator, rules)
	return validate, translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator, rules ContentRules) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(meaningfulTag, func(fl validator.FieldLevel) bool {
		return rules.Meaningful(fl.Field().String())
	})
	RegisterCustomTranslation(validate, translator, meaningfulTag, meaningfulText)

	_ = validate.RegisterValidation(roleTag, roleValidation)
	RegisterCustomTranslation(validate, translator, roleTag, roleText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// TranslateErrors flattens validator errors into FieldErrors.
func TranslateErrors(err error, translator ut.Translator) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	flds := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		flds = append(flds, FieldError{Field: fe.Field(), Error: fe.Translate(translator)})
	}
	return NewValidationError(err, flds...)
}

// Custom Global Validators

// roleValidation only allows known report roles.
func roleValidation(fl validator.FieldLevel) bool {
	role := Role(fl.Field().String())
	for _, r := range Roles {
		if role == r {
			return true
		}
	}
	return false
}
