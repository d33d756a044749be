package asset

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	a, err := Parse("12.3400 DAPP")
	require.NoError(t, err)
	assert.Equal(t, "DAPP", a.Symbol)
	assert.True(t, a.Amount.Equal(decimal.RequireFromString("12.34")))
	assert.Equal(t, "12.3400 DAPP", a.String())
}

func TestParseMalformed(t *testing.T) {
	for _, s := range []string{"", "12.34", " DAPP", "12.34 ", "abc DAPP"} {
		_, err := Parse(s)
		assert.Error(t, err, s)
	}
}

func TestAdd(t *testing.T) {
	sum, err := MustParse("1.5000 DAPP").Add(MustParse("2.2500 DAPP"))
	require.NoError(t, err)
	assert.Equal(t, "3.7500 DAPP", sum.String())

	sum, err = Zero("").Add(MustParse("0.0001 DAPP"))
	require.NoError(t, err)
	assert.Equal(t, "0.0001 DAPP", sum.String())

	_, err = MustParse("1.0000 DAPP").Add(MustParse("1.0000 EOS"))
	assert.Error(t, err)
}

func TestStringTruncates(t *testing.T) {
	a := FromDecimal(decimal.RequireFromString("1.99999"), "DAPP")
	assert.Equal(t, "1.9999 DAPP", a.String())
}

func TestJSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal(MustParse("5.0000 DAPP"))
	require.NoError(t, err)
	assert.Equal(t, `"5.0000 DAPP"`, string(raw))

	var a Asset
	require.NoError(t, json.Unmarshal(raw, &a))
	assert.Equal(t, "5.0000 DAPP", a.String())
}

func TestShare(t *testing.T) {
	tests := []struct {
		part, total, want string
	}{
		{"333", "1000", "0.333"},
		{"1", "3", "0.333333"},
		{"2", "3", "0.666666"}, // truncated, not rounded
		{"1000", "1000", "1"},
		{"0", "1000", "0"},
	}
	for _, tt := range tests {
		got := Share(decimal.RequireFromString(tt.part), decimal.RequireFromString(tt.total))
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
			"%s/%s: got %s want %s", tt.part, tt.total, got, tt.want)
	}
}

func TestShareZeroTotal(t *testing.T) {
	got := Share(decimal.NewFromInt(5), decimal.Zero)
	assert.True(t, got.IsZero())
}
