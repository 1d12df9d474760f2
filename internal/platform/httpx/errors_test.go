package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brodesk/brodesk/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.NewValidationError("email", "Please enter a valid email address"), http.StatusBadRequest},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{shared.ErrUnauthorized, http.StatusUnauthorized},
		{shared.ErrPendingApproval, http.StatusForbidden},
		{shared.ErrRejected, http.StatusForbidden},
		{fmt.Errorf("assign: %w", shared.ErrForbidden), http.StatusForbidden},
		{shared.ErrNotFound, http.StatusNotFound},
		{shared.ErrInvalidTransition, http.StatusConflict},
		{shared.NewConflict("in use"), http.StatusConflict},
		{shared.WrapStore("insert", errors.New("connection reset")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestRespondErrorPassesStoreMessageThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.WrapStore("insert profile", errors.New("relation \"profiles\" does not exist")))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, `relation "profiles" does not exist`, body.Detail)
}

func TestRespondErrorIncludesValidationField(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.NewValidationError("phone", "Phone number must be exactly 10 digits"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, body.Status)
	assert.Equal(t, "phone", body.Field)
	assert.Equal(t, "Phone number must be exactly 10 digits", body.Detail)
}
