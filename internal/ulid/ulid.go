// Package ulid wraps github.com/oklog/ulid/v2 with typed prefixes so that
// identifiers say what they point at (an upload, a push subscription, a
// journaled signal).
package ulid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Identifier prefixes
const (
	PrefixUpload       = "upl"
	PrefixSubscription = "sub"
	PrefixSignal       = "sig"
	PrefixSetting      = "set"
	PrefixRequest      = "req"

	// PrefixSeparator is used to separate the prefix from the ULID
	PrefixSeparator = "-"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// ULID is a ulid.ULID with an optional prefix.
type ULID struct {
	ulid.ULID
	prefix string
}

// Generate creates a new ULID with the current timestamp.
func Generate() ULID {
	return NewWithTime(time.Now())
}

// GenerateWithPrefix creates a new ULID with the current timestamp and a prefix.
func GenerateWithPrefix(prefix string) ULID {
	id := Generate()
	id.prefix = prefix
	return id
}

// NewWithTime creates a new ULID with a specific timestamp.
func NewWithTime(t time.Time) ULID {
	entropyLock.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	entropyLock.Unlock()
	return ULID{ULID: id}
}

// Parse accepts both plain and prefixed ("upl-01AN4Z07BY79KA1307SR9X4MV3") ULIDs.
func Parse(id string) (ULID, error) {
	prefix, raw, found := strings.Cut(id, PrefixSeparator)
	if !found {
		raw, prefix = id, ""
	}

	parsed, err := ulid.Parse(raw)
	if err != nil {
		return ULID{}, fmt.Errorf("parsing ulid %q: %w", id, err)
	}

	return ULID{ULID: parsed, prefix: prefix}, nil
}

// Validate reports whether id parses as a ULID.
func Validate(id string) bool {
	_, err := Parse(id)
	return err == nil
}

// Prefix returns the prefix, empty when none was set.
func (u ULID) Prefix() string {
	return u.prefix
}

// IsZero reports whether u is the zero ULID.
func (u ULID) IsZero() bool {
	return u.ULID.Compare(ulid.ULID{}) == 0
}

// Time returns the timestamp encoded in the ULID.
func (u ULID) Time() time.Time {
	return ulid.Time(u.ULID.Time())
}

// String returns the prefixed string form.
func (u ULID) String() string {
	if u.prefix == "" {
		return u.ULID.String()
	}
	return u.prefix + PrefixSeparator + u.ULID.String()
}

// UploadID generates an identifier for an active upload
func UploadID() string {
	return GenerateWithPrefix(PrefixUpload).String()
}

// SubscriptionID generates an identifier for a push channel subscription
func SubscriptionID() string {
	return GenerateWithPrefix(PrefixSubscription).String()
}

// SignalID generates an identifier for a journaled completion signal
func SignalID() string {
	return GenerateWithPrefix(PrefixSignal).String()
}

// SettingID generates an identifier for a persisted setting
func SettingID() string {
	return GenerateWithPrefix(PrefixSetting).String()
}

// RequestID generates an identifier for an outbound request
func RequestID() string {
	return GenerateWithPrefix(PrefixRequest).String()
}
