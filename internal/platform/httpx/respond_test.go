package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/freshline/internal/shared"
)

type optionalBody struct {
	Note string `json:"note" validate:"max=5"`
}

func TestDecodeOptional(t *testing.T) {
	cases := map[string]struct {
		body    io.Reader
		length  int64
		want    string
		wantErr bool
	}{
		"no body":        {body: nil, length: 0},
		"chunked empty":  {body: io.NopCloser(strings.NewReader("")), length: -1},
		"present":        {body: strings.NewReader(`{"note":"ok"}`), length: 13, want: "ok"},
		"malformed":      {body: strings.NewReader(`{"note":`), length: 8, wantErr: true},
		"fails validate": {body: strings.NewReader(`{"note":"too long"}`), length: 19, wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", tc.body)
			req.ContentLength = tc.length
			var got optionalBody
			err := DecodeOptional(req, &got)
			if tc.wantErr {
				require.ErrorIs(t, err, shared.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Note)
		})
	}
}

func TestRespondErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{err: shared.Validationf("bad"), status: http.StatusBadRequest, detail: "validation failed: bad"},
		{err: shared.ErrNotFound, status: http.StatusNotFound, detail: "not found"},
		{err: shared.ErrIdempotencyConflict, status: http.StatusConflict},
		{err: shared.Storage("load", errors.New("conn reset")), status: http.StatusInternalServerError},
		{err: errors.New("driver panic: secret dsn"), status: http.StatusInternalServerError, detail: "unexpected error, please retry"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		if tc.detail == "" {
			continue
		}
		var problem ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
		assert.Equal(t, tc.detail, problem.Detail)
	}
}
