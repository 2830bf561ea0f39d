package domain

import (
	"time"

	"github.com/google/uuid"

	"school_messenger/pkg/errors"
)

type GroupKind string

const (
	GroupKindCustom    GroupKind = "custom"
	GroupKindAutomatic GroupKind = "automatic"
)

type AutomaticType string

const (
	AutoTypeSchool  AutomaticType = "school"
	AutoTypeClass   AutomaticType = "class"
	AutoTypeSection AutomaticType = "section"
	AutoTypeSubject AutomaticType = "subject"
)

// GroupIdentifier is the logical address of a chat group. Its encoded form
// (see codec.go) doubles as the socket room name and the cache key, so it is
// never persisted as a struct, only as the encoded token.
type GroupIdentifier struct {
	Kind    GroupKind
	School  int64
	Type    AutomaticType // automatic identifiers only
	Class   int64         // class and section identifiers
	Section int64         // section identifiers
	Subject int64         // subject identifiers
	Group   int64         // custom identifiers
}

func NewSchoolWideGroup(school int64) GroupIdentifier {
	return GroupIdentifier{Kind: GroupKindAutomatic, Type: AutoTypeSchool, School: school}
}

func NewClassGroup(school, class int64) GroupIdentifier {
	return GroupIdentifier{Kind: GroupKindAutomatic, Type: AutoTypeClass, School: school, Class: class}
}

func NewSectionGroup(school, class, section int64) GroupIdentifier {
	return GroupIdentifier{Kind: GroupKindAutomatic, Type: AutoTypeSection, School: school, Class: class, Section: section}
}

func NewSubjectGroup(school, subject int64) GroupIdentifier {
	return GroupIdentifier{Kind: GroupKindAutomatic, Type: AutoTypeSubject, School: school, Subject: subject}
}

func NewCustomGroup(school, group int64) GroupIdentifier {
	return GroupIdentifier{Kind: GroupKindCustom, School: school, Group: group}
}

// Validate checks the identifier against the tagged-union schema. Encode must
// only ever be called on identifiers that pass this check.
func (g GroupIdentifier) Validate() error {
	if g.School <= 0 {
		return errors.ErrMalformedIdentifier
	}
	switch g.Kind {
	case GroupKindCustom:
		if g.Group <= 0 || g.Type != "" || g.Class != 0 || g.Section != 0 || g.Subject != 0 {
			return errors.ErrMalformedIdentifier
		}
		return nil
	case GroupKindAutomatic:
		switch g.Type {
		case AutoTypeSchool:
			if g.Class != 0 || g.Section != 0 || g.Subject != 0 || g.Group != 0 {
				return errors.ErrMalformedIdentifier
			}
		case AutoTypeClass:
			if g.Class <= 0 || g.Section != 0 || g.Subject != 0 || g.Group != 0 {
				return errors.ErrMalformedIdentifier
			}
		case AutoTypeSection:
			if g.Class <= 0 || g.Section <= 0 || g.Subject != 0 || g.Group != 0 {
				return errors.ErrMalformedIdentifier
			}
		case AutoTypeSubject:
			if g.Subject <= 0 || g.Class != 0 || g.Section != 0 || g.Group != 0 {
				return errors.ErrMalformedIdentifier
			}
		default:
			return errors.ErrUnknownIdentifierType
		}
		return nil
	default:
		return errors.ErrMalformedIdentifier
	}
}

// Group is a teacher- or staff-created custom chat group.
type Group struct {
	ID        int64     `json:"id"`
	SchoolID  int64     `json:"school_id"`
	Name      string    `json:"name"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupSummary is the listing projection returned by the groups endpoint.
type GroupSummary struct {
	Key           string     `json:"group_identifier"`
	Name          string     `json:"name"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}
