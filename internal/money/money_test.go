package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCredits(t *testing.T) {
	assert.Equal(t, Credits(100), ToCredits(5000))
	assert.Equal(t, Credits(0), ToCredits(49))
	assert.Equal(t, Credits(1), ToCredits(50))
	assert.Equal(t, Credits(1), ToCredits(99))
}

func TestParsePaise(t *testing.T) {
	p, err := ParsePaise("50")
	require.NoError(t, err)
	assert.Equal(t, Paise(5000), p)

	p, err = ParsePaise("12.34")
	require.NoError(t, err)
	assert.Equal(t, Paise(1234), p)

	p, err = ParsePaise("92233720368547758.07")
	require.NoError(t, err)
	assert.Equal(t, Paise(math.MaxInt64), p)

	for _, bad := range []string{"", "abc", "0", "-1", "1.234", "92233720368547758.08", "100000000000000000000"} {
		_, err := ParsePaise(bad)
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestPaiseString(t *testing.T) {
	assert.Equal(t, "50.00", Paise(5000).String())
	assert.Equal(t, "0.05", Paise(5).String())
}
