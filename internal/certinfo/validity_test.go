package certinfo_test

import (
	"testing"
	"time"

	"github.com/sebastian-mora/sshtoken/internal/certinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidity(t *testing.T) {
	from := time.Date(2024, 3, 15, 12, 30, 44, 0, time.UTC)
	to := time.Date(2024, 3, 16, 12, 30, 45, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want certinfo.ValidityWindow
	}{
		{"bounded", "from 2024-03-15T12:30:44 to 2024-03-16T12:30:45", certinfo.ValidityWindow{NotBefore: from, NotAfter: to}},
		{"extra whitespace", "  from 2024-03-15T12:30:44   to 2024-03-16T12:30:45 ", certinfo.ValidityWindow{NotBefore: from, NotAfter: to}},
		{"tab separated", "from 2024-03-15T12:30:44\tto 2024-03-16T12:30:45", certinfo.ValidityWindow{NotBefore: from, NotAfter: to}},
		{"upper case", "FROM 2024-03-15T12:30:44 TO 2024-03-16T12:30:45", certinfo.ValidityWindow{NotBefore: from, NotAfter: to}},
		{"rfc3339", "from 2024-03-15T12:30:44Z to 2024-03-16T22:30:45+10:00", certinfo.ValidityWindow{NotBefore: from, NotAfter: to}},
		{"forever", "forever", certinfo.ValidityWindow{}},
		{"after", "after 2024-03-15T12:30:44", certinfo.ValidityWindow{NotBefore: from}},
		{"before", "before 2024-03-16T12:30:45", certinfo.ValidityWindow{NotAfter: to}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := certinfo.ParseValidity(tt.raw, time.UTC)
			require.NoError(t, err)
			assert.True(t, tt.want.NotBefore.Equal(got.NotBefore), "not before: %v", got.NotBefore)
			assert.True(t, tt.want.NotAfter.Equal(got.NotAfter), "not after: %v", got.NotAfter)
		})
	}
}

func TestParseValidityLocation(t *testing.T) {
	loc := time.FixedZone("AEST", 10*60*60)
	got, err := certinfo.ParseValidity("before 2024-03-16T22:30:45", loc)
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 3, 16, 12, 30, 45, 0, time.UTC).Equal(got.NotAfter))
}

func TestParseValidityErrors(t *testing.T) {
	_, err := certinfo.ParseValidity("  ", time.UTC)
	assert.ErrorIs(t, err, certinfo.ErrNoValidity)

	for _, raw := range []string{
		"from 2024-03-15T12:30:44",
		"from yesterday to tomorrow",
		"sometime soon",
		"from 2024-03-16T12:30:45 to 2024-03-15T12:30:44",
		"after 15/03/2024",
		"from 2024-03-15T12:30:44 until 2024-03-16T12:30:45",
		"forever and ever",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := certinfo.ParseValidity(raw, time.UTC)
			assert.ErrorIs(t, err, certinfo.ErrUnparsableValidity)
		})
	}
}

func TestValidityWindowExpired(t *testing.T) {
	end := time.Date(2024, 3, 16, 12, 30, 45, 0, time.UTC)
	w := certinfo.ValidityWindow{NotAfter: end}

	assert.False(t, w.Expired(end))
	assert.True(t, w.Expired(end.Add(time.Second)))
	assert.False(t, certinfo.ValidityWindow{}.Expired(end.Add(100*365*24*time.Hour)))
	assert.True(t, certinfo.ValidityWindow{NotBefore: end}.NotYetValid(end.Add(-time.Second)))
}
