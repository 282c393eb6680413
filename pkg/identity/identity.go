package identity

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalid is returned when no canonical id can be recovered from the input.
var ErrInvalid = errors.New("invalid identity")

var (
	canonicalPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	embeddedPattern  = regexp.MustCompile(`[0-9a-fA-F]{24}`)
)

// ID is a cleaned platform identifier (24 lower-case hex digits). Only
// Normalize and Must produce values of this type from raw input.
type ID string

func (id ID) String() string { return string(id) }

// IsZero reports whether id is the empty identifier.
func (id ID) IsZero() bool { return id == "" }

// Normalize trims raw and returns it when it is already a canonical id.
// Otherwise the first embedded 24-hex-digit run is extracted, which tolerates
// clients that send values like `ObjectId("...")` or quoted ids.
func Normalize(raw string) (ID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalid
	}
	if canonicalPattern.MatchString(s) {
		return ID(strings.ToLower(s)), nil
	}
	if m := embeddedPattern.FindString(s); m != "" {
		return ID(strings.ToLower(m)), nil
	}
	return "", ErrInvalid
}

// NormalizeAll normalizes every value, dropping duplicates while keeping the
// first-seen order. It fails on the first value that cannot be normalized.
func NormalizeAll(raws []string) ([]ID, error) {
	out := make([]ID, 0, len(raws))
	seen := make(map[ID]struct{}, len(raws))
	for _, raw := range raws {
		id, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// Must is Normalize for trusted constants; it panics on invalid input.
func Must(raw string) ID {
	id, err := Normalize(raw)
	if err != nil {
		panic("identity: invalid id " + raw)
	}
	return id
}

// PairKey returns the order-independent key for a two-party conversation.
func PairKey(a, b ID) string {
	if b < a {
		a, b = b, a
	}
	return string(a) + ":" + string(b)
}
