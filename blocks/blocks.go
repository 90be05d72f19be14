package blocks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// Type is the discriminator stored in every block's "type" field.
type Type string

const (
	TypeHero               Type = "hero"
	TypeRichText           Type = "richtext"
	TypeText               Type = "text"
	TypeImage              Type = "image"
	TypePDF                Type = "pdf"
	TypeDocumentList       Type = "document-list"
	TypeAnnouncementBanner Type = "announcement-banner"
	TypeAnnouncement       Type = "announcement"
	TypeInfoCardGrid       Type = "info-card-grid"
	TypeSurvey             Type = "survey"
	TypeDivider            Type = "divider"
)

// Payload is implemented by every variant's data struct.
type Payload interface {
	common() *Common
}

// Block is one entry of a page document. Data always holds the payload
// struct that matches Type.
type Block struct {
	ID    string  `json:"id"`
	Type  Type    `json:"type"`
	Order int     `json:"order"`
	Data  Payload `json:"data"`
}

type envelope struct {
	ID    string          `json:"id"`
	Type  Type            `json:"type"`
	Order int             `json:"order"`
	Data  json.RawMessage `json:"data"`
}

// UnmarshalJSON decodes the envelope and runs the variant schema over data,
// so a decoded Block is always normalized.
func (b *Block) UnmarshalJSON(raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	payload, err := Validate(env.Type, env.Data)
	if err != nil {
		return err
	}
	b.ID = env.ID
	b.Type = env.Type
	b.Order = env.Order
	b.Data = payload
	return nil
}

// newPayload returns an empty payload struct for the given tag.
func newPayload(t Type) (Payload, bool) {
	switch t {
	case TypeHero:
		return &Hero{}, true
	case TypeRichText, TypeText:
		return &RichText{}, true
	case TypeImage:
		return &Image{}, true
	case TypePDF, TypeDocumentList:
		return &DocumentList{}, true
	case TypeAnnouncementBanner, TypeAnnouncement:
		return &Announcement{}, true
	case TypeInfoCardGrid:
		return &InfoCardGrid{}, true
	case TypeSurvey:
		return &Survey{}, true
	case TypeDivider:
		return &Divider{}, true
	}
	return nil, false
}

// Known reports whether t names a supported block variant.
func Known(t Type) bool {
	_, ok := newPayload(t)
	return ok
}

// Validate decodes data into the payload struct for t, applies defaults and
// checks it against the variant schema.
func Validate(t Type, data json.RawMessage) (Payload, error) {
	payload, ok := newPayload(t)
	if !ok {
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown block type %q", t)}
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, decodeError(err)
	}

	if err := check(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ValidateBlock re-checks a block built in code rather than decoded from JSON.
// A nil pointer payload counts as no payload.
func ValidateBlock(b Block) (Block, error) {
	if noPayload(b.Data) {
		payload, err := Validate(b.Type, nil)
		if err != nil {
			return b, err
		}
		b.Data = payload
		return b, nil
	}

	expected, ok := newPayload(b.Type)
	if !ok {
		return b, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown block type %q", b.Type)}
	}
	if reflect.TypeOf(expected) != reflect.TypeOf(b.Data) {
		return b, &ValidationError{Field: "data", Reason: fmt.Sprintf("payload %T does not match type %q", b.Data, b.Type)}
	}
	if err := check(b.Data); err != nil {
		return b, err
	}
	return b, nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "data"
		}
		return &ValidationError{Field: field, Reason: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value)}
	}
	return &ValidationError{Field: "data", Reason: err.Error()}
}

// Public reports whether the block may appear in public renders.
func (b Block) Public() bool {
	return noPayload(b.Data) || !b.Data.common().Hidden()
}

func noPayload(p Payload) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// PublicOnly returns the public blocks of list, keeping their sequence.
func PublicOnly(list []Block) []Block {
	out := make([]Block, 0, len(list))
	for _, b := range list {
		if b.Public() {
			out = append(out, b)
		}
	}
	return out
}
