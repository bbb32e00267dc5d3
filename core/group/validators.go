package group

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/formify/core"
)

var (
	mobileTag   = "mobile"
	mobileText  = "Mobile Number must be 10 digits"
	mobileRegex = regexp.MustCompile(`^[0-9]{10}$`)

	agreedTag  = "agreed"
	agreedText = "Agreement to continue as Major Project is required"

	distinctPrefsTag  = "distinctprefs"
	distinctPrefsText = "All three supervisor preferences must be distinct"
)

// InitValidators registers the submission form validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(mobileTag, mobileValidation)
	core.RegisterCustomTranslation(validate, translator, mobileTag, mobileText)

	_ = validate.RegisterValidation(agreedTag, agreedValidation)
	core.RegisterCustomTranslation(validate, translator, agreedTag, agreedText)

	validate.RegisterStructValidation(formStructValidation, SubmissionForm{})
	core.RegisterCustomTranslation(validate, translator, distinctPrefsTag, distinctPrefsText)
}

// Custom Validators

func mobileValidation(fl validator.FieldLevel) bool {
	return mobileRegex.MatchString(fl.Field().String())
}

func agreedValidation(fl validator.FieldLevel) bool {
	return fl.Field().Bool()
}

// formStructValidation checks the three teacher preferences are distinct.
func formStructValidation(sl validator.StructLevel) {
	sf := sl.Current().Interface().(SubmissionForm)
	if sf.Pref1 == "" || sf.Pref2 == "" || sf.Pref3 == "" {
		return // reported by `required`
	}
	if sf.Pref1 == sf.Pref2 || sf.Pref1 == sf.Pref3 {
		sl.ReportError(sf.Pref1, "pref1", "Pref1", distinctPrefsTag, "")
	} else if sf.Pref2 == sf.Pref3 {
		sl.ReportError(sf.Pref2, "pref2", "Pref2", distinctPrefsTag, "")
	}
}
