package vin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValid(t *testing.T) {
	cases := []struct {
		vin  string
		want bool
	}{
		{"2HGFC2F59MH528491", true},
		{"1HGBH41JXMN109186", true},
		{"2HGFC2F59MH52849", false},   // 16 chars
		{"2HGFC2F59MH5284911", false}, // 18 chars
		{"2HGFC2F59MH52849I", false},  // contains I
		{"2HGFC2F59MH52849O", false},  // contains O
		{"2HGFC2F59MH52849Q", false},  // contains Q
		{"2hgfc2f59mh528491", false},  // lowercase
		{"2HGFC2F59MH52849-", false},
		{"", false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Valid(c.vin), "vin %q", c.vin)
	}
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "2HGFC2F59MH528491", Normalize("  2hgfc2f59mh528491 "))
}
