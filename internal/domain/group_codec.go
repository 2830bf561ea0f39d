package domain

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"school_messenger/pkg/errors"
)

// EncodeGroup serializes an identifier to its canonical token: key=value
// pairs, percent-escaped, sorted lexicographically by key and joined with
// "&". The same logical identifier always yields byte-identical output, so
// the token is usable as a room name and cache key without a lookup table.
func EncodeGroup(g GroupIdentifier) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}

	fields := map[string]string{
		"kind":   string(g.Kind),
		"school": strconv.FormatInt(g.School, 10),
	}
	switch g.Kind {
	case GroupKindCustom:
		fields["group"] = strconv.FormatInt(g.Group, 10)
	case GroupKindAutomatic:
		fields["type"] = string(g.Type)
		switch g.Type {
		case AutoTypeClass:
			fields["class"] = strconv.FormatInt(g.Class, 10)
		case AutoTypeSection:
			fields["class"] = strconv.FormatInt(g.Class, 10)
			fields["section"] = strconv.FormatInt(g.Section, 10)
		case AutoTypeSubject:
			fields["subject"] = strconv.FormatInt(g.Subject, 10)
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(fields[k]))
	}
	return strings.Join(pairs, "&"), nil
}

// MustEncodeGroup is EncodeGroup for identifiers already known valid, e.g.
// ones built by the New* constructors from trusted role data.
func MustEncodeGroup(g GroupIdentifier) string {
	token, err := EncodeGroup(g)
	if err != nil {
		panic(err)
	}
	return token
}

// DecodeGroup parses a token back into an identifier. Round-trip law:
// DecodeGroup(EncodeGroup(g)) == g for every valid g.
func DecodeGroup(token string) (GroupIdentifier, error) {
	var g GroupIdentifier
	if token == "" {
		return g, errors.ErrMalformedIdentifier
	}

	fields := map[string]string{}
	ints := map[string]int64{}
	for _, pair := range strings.Split(token, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return g, errors.ErrMalformedIdentifier
		}
		key, err := url.QueryUnescape(key)
		if err != nil {
			return g, errors.ErrMalformedIdentifier
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			return g, errors.ErrMalformedIdentifier
		}
		if _, dup := fields[key]; dup {
			return g, errors.ErrMalformedIdentifier
		}
		fields[key] = value
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && value != "" {
			ints[key] = n
		}
	}

	g.Kind = GroupKind(fields["kind"])
	g.School = ints["school"]
	delete(fields, "kind")
	delete(fields, "school")

	switch g.Kind {
	case GroupKindCustom:
		g.Group = ints["group"]
		delete(fields, "group")
	case GroupKindAutomatic:
		g.Type = AutomaticType(fields["type"])
		delete(fields, "type")
		switch g.Type {
		case AutoTypeSchool:
		case AutoTypeClass:
			g.Class = ints["class"]
			delete(fields, "class")
		case AutoTypeSection:
			g.Class = ints["class"]
			g.Section = ints["section"]
			delete(fields, "class")
			delete(fields, "section")
		case AutoTypeSubject:
			g.Subject = ints["subject"]
			delete(fields, "subject")
		default:
			return GroupIdentifier{}, errors.ErrUnknownIdentifierType
		}
	default:
		return GroupIdentifier{}, errors.ErrMalformedIdentifier
	}

	// Anything left over means the token does not match a known schema.
	if len(fields) != 0 {
		return GroupIdentifier{}, errors.ErrMalformedIdentifier
	}
	if err := g.Validate(); err != nil {
		return GroupIdentifier{}, err
	}
	return g, nil
}
