package instance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	valid := []string{
		"dev",
		"mugen-1",
		"team-alpha-2",
		"a",
		"0",
	}
	for _, name := range valid {
		t.Run("accepts "+name, func(t *testing.T) {
			assert.NoError(t, ValidateName(name))
		})
	}

	invalid := []struct {
		name   string
		input  string
		errMsg string
	}{
		{"empty", "", "cannot be empty"},
		{"uppercase", "Dev", "must be lowercase"},
		{"leading hyphen", "-dev", "not at start/end"},
		{"trailing hyphen", "dev-", "not at start/end"},
		{"underscore", "dev_env", "must be lowercase alphanumeric"},
		{"punctuation", "dev@2", "must be lowercase alphanumeric"},
		{"spaces", "my instance", "must be lowercase alphanumeric"},
	}
	for _, tc := range invalid {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			err := ValidateName(tc.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestValidateName_LengthBoundary(t *testing.T) {
	atLimit := "m" + strings.Repeat("x", MaxNameLength-1)
	require.Len(t, atLimit, MaxNameLength)
	assert.NoError(t, ValidateName(atLimit))

	overLimit := atLimit + "x"
	err := ValidateName(overLimit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too long")
}

func TestDefaultNameNumber(t *testing.T) {
	tests := []struct {
		input string
		n     int
		ok    bool
	}{
		{"mugen-1", 1, true},
		{"mugen-42", 42, true},
		{"mugen-", 0, false},
		{"mugen-abc", 0, false},
		{"team-alpha", 0, false},
		{"", 0, false},
	}
	for _, tc := range tests {
		n, ok := defaultNameNumber(tc.input)
		assert.Equal(t, tc.ok, ok, tc.input)
		assert.Equal(t, tc.n, n, tc.input)
	}
}
