package parsers

import (
	"errors"
	"fmt"

	"github.com/civicportal/portal-sync/internal/model"
)

// ErrParse matches every error produced while parsing item content
var ErrParse = errors.New("parse error")

// UnsupportedKindError is returned for kinds without a registered parser
type UnsupportedKindError struct {
	Kind model.Kind
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("no parser registered for kind %q", e.Kind)
}

// Is makes UnsupportedKindError match ErrParse
func (*UnsupportedKindError) Is(target error) bool {
	return target == ErrParse
}

// MalformedContentError is returned when content cannot be parsed as its kind
type MalformedContentError struct {
	Kind       model.Kind
	ExternalID string
	Err        error
}

func (e *MalformedContentError) Error() string {
	return fmt.Sprintf("malformed %s content in %s: %v", e.Kind, e.ExternalID, e.Err)
}

func (e *MalformedContentError) Unwrap() error {
	return e.Err
}

// Is makes MalformedContentError match ErrParse
func (*MalformedContentError) Is(target error) bool {
	return target == ErrParse
}
