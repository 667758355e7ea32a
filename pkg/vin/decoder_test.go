package vin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const vpicFixture = `{
	"Count": 3,
	"Results": [
		{"Variable": "Make", "Value": "HONDA"},
		{"Variable": "Model", "Value": "Civic"},
		{"Variable": "Model Year", "Value": "2021"},
		{"Variable": "Trim", "Value": "Not Applicable"},
		{"Variable": "Series", "Value": null},
		{"Variable": "Doors", "Value": "  "}
	]
}`

func TestVPICDecoder_Decode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/vehicles/DecodeVin/2HGFC2F59MH528491", r.URL.Path)
		require.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(vpicFixture))
	}))
	defer srv.Close()

	d := NewVPICDecoder(srv.URL)
	decoded, err := d.Decode(context.Background(), "2HGFC2F59MH528491")
	require.NoError(t, err)

	require.Equal(t, map[string]string{
		"Make":       "HONDA",
		"Model":      "Civic",
		"Model Year": "2021",
	}, decoded)
}

func TestVPICDecoder_EmptyOnUnknownVIN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Count": 0, "Results": []}`))
	}))
	defer srv.Close()

	d := NewVPICDecoder(srv.URL)
	decoded, err := d.Decode(context.Background(), "1HGBH41JXMN109186")
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestVPICDecoder_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewVPICDecoder(srv.URL)
	_, err := d.Decode(context.Background(), "1HGBH41JXMN109186")
	require.Error(t, err)
}
