package schema

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes of loading, indexing and lookup.
// Match them with errors.Is.
var (
	// ErrCardAccess means the card file is missing or unreadable.
	ErrCardAccess = errors.New("cannot access card")
	// ErrCardFormat means the card file is not a JSON object.
	ErrCardFormat = errors.New("cannot read format of card")
	// ErrProperty means a property is missing, malformed or of the wrong type.
	ErrProperty = errors.New("cannot read property")
	// ErrInvalidQualifiedID means a "<type>/<id>" string did not parse.
	ErrInvalidQualifiedID = errors.New("invalid qualified id")
	// ErrNotFound means no card matched a name or id.
	ErrNotFound = errors.New("card not found")
	// ErrAmbiguous means more than one card matched a name.
	ErrAmbiguous = errors.New("card name is ambiguous")
	// ErrIndex means a query or transaction against the index failed.
	ErrIndex = errors.New("index failure")
)

// PropertyError reports which property of a card could not be read.
type PropertyError struct {
	Name string
	Err  error
}

func (e *PropertyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cannot read property %s", e.Name)
	}
	return fmt.Sprintf("cannot read property %s: %v", e.Name, e.Err)
}

func (e *PropertyError) Is(target error) bool {
	return target == ErrProperty
}

func (e *PropertyError) Unwrap() error {
	return e.Err
}

// LookupError is returned when a name or id token does not resolve to
// exactly one card.
type LookupError struct {
	Variant   Variant
	Token     string
	Ambiguous bool
}

func (e *LookupError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("name '%s/%s' is ambiguous", e.Variant.Tag(), e.Token)
	}
	return fmt.Sprintf("cannot find card '%s/%s'", e.Variant.Tag(), e.Token)
}

func (e *LookupError) Is(target error) bool {
	if e.Ambiguous {
		return target == ErrAmbiguous
	}
	return target == ErrNotFound
}

// IndexError wraps a database failure with the operation that hit it.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IndexError) Is(target error) bool {
	return target == ErrIndex
}

func (e *IndexError) Unwrap() error {
	return e.Err
}
