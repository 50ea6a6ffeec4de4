package record

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultKind is the entity kind used when none is configured.
const DefaultKind = "MyModel"

// MaxNameLength bounds Name in runes after normalization.
const MaxNameLength = 255

// ErrInvalidName is returned by NormalizeName for unusable names.
var ErrInvalidName = errors.New("invalid record name")

// Record is one instance of an entity kind.
type Record struct {
	// ID is the permanent identity. Empty until the owning scope commits.
	ID string `json:"id,omitempty"`

	// ProvisionalID identifies the record while it is pending.
	ProvisionalID string `json:"provisional_id"`

	// Kind is the entity kind (the event source kind).
	Kind string `json:"kind"`

	// Name is NFC-normalized.
	Name string `json:"name"`

	// Seq is the logical clock stamp taken at create time.
	Seq int64 `json:"seq"`

	// ScopeID is the scope that wrote the record.
	ScopeID string `json:"scope_id"`

	CreatedAt   time.Time `json:"created_at"`
	CommittedAt time.Time `json:"committed_at,omitzero"`
}

// Durable reports whether the record has a permanent identity.
func (r Record) Durable() bool {
	return r.ID != ""
}

// NormalizeName NFC-normalizes name and validates it. Whitespace is kept and
// the empty name is allowed; only invalid UTF-8 and overlong names fail.
// Two names that render identically always normalize to the same string.
func NormalizeName(name string) (string, error) {
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidName)
	}

	normalized := norm.NFC.String(name)
	if n := utf8.RuneCountInString(normalized); n > MaxNameLength {
		return "", fmt.Errorf("%w: %d runes exceeds %d", ErrInvalidName, n, MaxNameLength)
	}

	return normalized, nil
}
