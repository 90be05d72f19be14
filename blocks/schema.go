package blocks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Common holds the presentation fields shared by every variant.
type Common struct {
	Visibility string `json:"visibility" validate:"oneof=public hidden"`
	Layout     string `json:"layout" validate:"oneof=full centered narrow"`
	Spacing    string `json:"spacing" validate:"oneof=none small medium large"`
	AnchorID   string `json:"anchorId,omitempty" validate:"omitempty,max=80"`
}

func (c *Common) common() *Common { return c }

// Hidden reports whether the block must be left out of public renders.
func (c *Common) Hidden() bool { return c.Visibility == "hidden" }

type Hero struct {
	Common
	Title           string `json:"title" validate:"required"`
	Description     string `json:"description,omitempty"`
	BackgroundImage string `json:"backgroundImage,omitempty"`
	CtaText         string `json:"ctaText,omitempty"`
	CtaLink         string `json:"ctaLink,omitempty"`
}

// RichText carries editor output; the content document is not inspected.
type RichText struct {
	Common
	Content json.RawMessage `json:"content" validate:"required"`
}

type Image struct {
	Common
	URL     string `json:"url" validate:"required,uri"`
	Alt     string `json:"alt,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type Document struct {
	Title    string `json:"title,omitempty"`
	URL      string `json:"url" validate:"required,uri"`
	FileName string `json:"fileName,omitempty"`
}

type DocumentList struct {
	Common
	Title       string     `json:"title,omitempty" validate:"required_without=Documents"`
	Documents   []Document `json:"documents,omitempty" validate:"required_without=Title,dive"`
	Description string     `json:"description,omitempty"`
	FileName    string     `json:"fileName,omitempty"`
}

type AnnouncementItem struct {
	Text string `json:"text" validate:"required"`
	Link string `json:"link,omitempty"`
	Date string `json:"date,omitempty"`
}

type Announcement struct {
	Common
	Title           string             `json:"title,omitempty" validate:"required_without=Items"`
	Items           []AnnouncementItem `json:"items,omitempty" validate:"required_without=Title,dive"`
	Text            string             `json:"text,omitempty"`
	Link            string             `json:"link,omitempty"`
	BackgroundColor string             `json:"backgroundColor,omitempty"`
}

type Card struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	Icon        string `json:"icon,omitempty"`
}

type InfoCardGrid struct {
	Common
	Cards   []Card `json:"cards" validate:"required,min=1,dive"`
	Columns int    `json:"columns" validate:"min=1,max=4"`
}

type SurveyOption struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text" validate:"required"`
}

type Survey struct {
	Common
	Question      string         `json:"question" validate:"required"`
	Options       []SurveyOption `json:"options" validate:"required,min=1,dive"`
	Description   string         `json:"description,omitempty"`
	AllowMultiple bool           `json:"allowMultiple"`
}

type Divider struct {
	Common
}

const defaultColumns = 3

func applyDefaults(p Payload) {
	c := p.common()
	if c.Visibility == "" {
		c.Visibility = "public"
	}
	if c.Layout == "" {
		c.Layout = "centered"
	}
	if c.Spacing == "" {
		c.Spacing = "medium"
	}
	if grid, ok := p.(*InfoCardGrid); ok && grid.Columns == 0 {
		grid.Columns = defaultColumns
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// check applies defaults to p in place and validates it.
func check(p Payload) error {
	applyDefaults(p)

	if rt, ok := p.(*RichText); ok {
		trimmed := bytes.TrimSpace(rt.Content)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return &ValidationError{Field: "content", Reason: "is required"}
		}
	}

	err := structValidator().Struct(p)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Field: "data", Reason: err.Error()}
	}
	first := fieldErrs[0]
	return &ValidationError{Field: fieldPath(first.Namespace()), Reason: describe(first)}
}

// fieldPath drops the struct name and embedded Common prefix from a
// validator namespace such as "Survey.options[0].text".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	if len(parts) > 1 && parts[0] == "Common" {
		parts = parts[1:]
	}
	return strings.Join(parts, ".")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return fmt.Sprintf("is required when %s is empty", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "uri":
		return "must be a valid URL or absolute path"
	}
	return fmt.Sprintf("failed %q", fe.Tag())
}
