package common

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

var slugValidate = newSlugValidator()

func newSlugValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

// NormalizeSlug trims slug and checks that it is lowercase ASCII words
// joined by single hyphens, so it can sit in a URL path unescaped.
func NormalizeSlug(slug string) (string, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return "", &InvalidInputError{Field: "slug", Reason: "is required"}
	}
	if err := slugValidate.Var(slug, "max=120,slug"); err != nil {
		return "", &InvalidInputError{Field: "slug", Reason: "must be lowercase letters, digits and single hyphens"}
	}
	return slug, nil
}
