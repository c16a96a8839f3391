package ulid

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	id := Generate()

	assert.False(t, id.IsZero(), "Generated ULID should not be zero")
	assert.Empty(t, id.Prefix())
	assert.WithinDuration(t, time.Now(), id.Time(), time.Second)
}

func TestGenerateWithPrefix(t *testing.T) {
	for _, prefix := range []string{PrefixUpload, PrefixSubscription, PrefixSignal, "custom"} {
		id := GenerateWithPrefix(prefix)

		assert.Equal(t, prefix, id.Prefix())
		assert.True(t, strings.HasPrefix(id.String(), prefix+PrefixSeparator))
	}
}

func TestParse(t *testing.T) {
	raw := Generate()
	parsedRaw, err := Parse(raw.String())
	require.NoError(t, err)
	assert.Equal(t, raw, parsedRaw)

	prefixed := GenerateWithPrefix(PrefixUpload)
	parsedPrefixed, err := Parse(prefixed.String())
	require.NoError(t, err)
	assert.Equal(t, prefixed, parsedPrefixed)
	assert.Equal(t, PrefixUpload, parsedPrefixed.Prefix())

	_, err = Parse("invalid-ulid")
	assert.Error(t, err)
}

func TestHelpers(t *testing.T) {
	cases := map[string]func() string{
		PrefixUpload:       UploadID,
		PrefixSubscription: SubscriptionID,
		PrefixSignal:       SignalID,
		PrefixSetting:      SettingID,
		PrefixRequest:      RequestID,
	}

	for prefix, gen := range cases {
		t.Run(prefix, func(t *testing.T) {
			id := gen()
			assert.True(t, Validate(id), "generated id should validate: %s", id)
			assert.True(t, strings.HasPrefix(id, prefix+PrefixSeparator))
		})
	}
}

func TestMonotonic(t *testing.T) {
	now := time.Now()
	a := NewWithTime(now)
	b := NewWithTime(now)
	assert.Equal(t, -1, a.ULID.Compare(b.ULID), "ids generated in the same millisecond should sort in order")
}
