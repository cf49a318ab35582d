package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/apiclient"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("group 9: %w", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("module: %w", ErrValidation), http.StatusBadRequest},
		{shared.ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{&apiclient.Error{Status: 500, Message: "boom"}, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestRespondErrorKeepsUpstreamMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("check: %w", &apiclient.Error{Status: 503, Message: "authorization service down"}))
	assert.JSONEq(t, `{"title":"Upstream Error","status":502,"detail":"authorization service down"}`, rec.Body.String())
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Module string `json:"module"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"module":"users","extra":1}`))
	err := DecodeJSON(req, &target)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}
