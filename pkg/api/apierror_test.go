package api

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteBadRequest(rec, "Invalid VIN. Must contain 17 characters.")

	require.Equal(t, 400, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Invalid VIN. Must contain 17 characters.", body.Error)
}

func TestWriteInternal_HidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteInternal(rec, errors.New("pq: connection refused at 10.0.0.5"))

	require.Equal(t, 500, rec.Code)
	require.NotContains(t, rec.Body.String(), "10.0.0.5")
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, 200, map[string]any{"success": true, "submission_id": 42})

	require.Equal(t, 200, rec.Code)
	require.JSONEq(t, `{"success":true,"submission_id":42}`, rec.Body.String())
}
