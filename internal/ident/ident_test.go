package ident

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyledger/pnlengine/internal/domain"
)

const condHex = "dd22472e552920b8438158ea7238bfadfa4f736aa4cee91a6b86c39ead110917"

func TestConditionID_CaseAndPrefixEquivalence(t *testing.T) {
	want := condHex

	variants := []string{
		condHex,
		"0x" + condHex,
		"0X" + strings.ToUpper(condHex),
		"  0x" + condHex + " ",
	}
	for _, v := range variants {
		got, err := ConditionID(v)
		require.NoError(t, err, "input %q", v)
		assert.Equal(t, want, got, "input %q", v)
	}
}

func TestConditionID_Invalid(t *testing.T) {
	for _, bad := range []string{
		"",
		"0x1234",
		condHex + "00",
		strings.Replace(condHex, "d", "g", 1),
	} {
		_, err := ConditionID(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidIdentifier, "input %q", bad)
	}
}

func TestTokenID_DecimalHexEquivalence(t *testing.T) {
	dec, err := TokenID("5067953593806855010323950133971967934089009556827660157226931414570736318")
	require.NoError(t, err)

	hex, err := TokenID("0x2de4cd8aeaf223d9c5fd1049b610d55d7eca4f8e347c6b2b4d0c029b19abe")
	require.NoError(t, err)

	assert.Equal(t, dec, hex)
}

func TestTokenID_Invalid(t *testing.T) {
	for _, bad := range []string{"", "abc", "-5", "0xzz", "12.5"} {
		_, err := TokenID(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidIdentifier, "input %q", bad)
	}
}

func TestWallet_Normalizes(t *testing.T) {
	got, err := Wallet("0xCCE2B7C71F21E358B8E5E797E586CBC03160D58B")
	require.NoError(t, err)
	assert.Equal(t, "0xcce2b7c71f21e358b8e5e797e586cbc03160d58b", got)
}

func TestOutcomeIndex(t *testing.T) {
	got, err := OutcomeIndex(1, true)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	got, err = OutcomeIndex(1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	_, err = OutcomeIndex(0, true)
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}
