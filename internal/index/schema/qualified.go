package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// QualifiedID is the global identity of a card: its variant plus its id.
// Ids are only unique within a variant.
type QualifiedID struct {
	Variant Variant
	ID      uint64
}

// String formats q as "<type>/<id>".
func (q QualifiedID) String() string {
	return q.Variant.Tag() + "/" + strconv.FormatUint(q.ID, 10)
}

// ParseID parses a card id. Ids are plain decimal digits and must fit in a
// signed 64-bit INTEGER column.
func ParseID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 63)
}

// ParseQualifiedID parses "<type>/<id>", e.g. "book/17".
func ParseQualifiedID(s string) (QualifiedID, error) {
	tag, rest, ok := strings.Cut(s, "/")
	if !ok {
		return QualifiedID{}, fmt.Errorf("%w %q: missing /", ErrInvalidQualifiedID, s)
	}
	v, err := ParseVariant(tag)
	if err != nil {
		return QualifiedID{}, fmt.Errorf("%w %q: %v", ErrInvalidQualifiedID, s, err)
	}
	id, err := ParseID(rest)
	if err != nil {
		return QualifiedID{}, fmt.Errorf("%w %q: invalid card id", ErrInvalidQualifiedID, s)
	}
	return QualifiedID{Variant: v, ID: id}, nil
}

// Link is a directed, optionally labelled edge from the owning card to Target.
type Link struct {
	Role   string
	Target QualifiedID
}

// ParseLink parses a link descriptor of the form "role:type/id" or
// "type/id". The role is everything before the first colon.
func ParseLink(s string) (Link, error) {
	role, target, ok := strings.Cut(s, ":")
	if !ok {
		role, target = "", s
	}
	q, err := ParseQualifiedID(target)
	if err != nil {
		return Link{}, fmt.Errorf("invalid link %q: %w", s, err)
	}
	return Link{Role: role, Target: q}, nil
}

// String formats l back into descriptor form.
func (l Link) String() string {
	if l.Role == "" {
		return l.Target.String()
	}
	return l.Role + ":" + l.Target.String()
}
