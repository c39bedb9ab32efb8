package prefixed_uuid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndFromStringRoundTrip(t *testing.T) {
	id := New("mem")
	assert.Equal(t, "mem", id.Prefix)
	assert.False(t, id.IsZero())

	parsed, err := FromString(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestFromStringInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no separator", "memabc"},
		{"not a uuid", "mem-not-a-uuid"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromString(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestHasPrefix(t *testing.T) {
	id := New("epi").String()
	assert.True(t, HasPrefix(id, "epi"))
	assert.False(t, HasPrefix(id, "mem"))
	assert.False(t, HasPrefix("garbage", "mem"))
}
