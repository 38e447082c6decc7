package apihandlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docq/internal/models"
	"docq/internal/store"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing record", fmt.Errorf("job abc: %w", store.ErrNotFound), http.StatusNotFound, "not_found"},
		{"state conflict", fmt.Errorf("job abc is already cancelled: %w", store.ErrConflict), http.StatusConflict, "conflict"},
		{"rejected input", fmt.Errorf("priority 9 out of range: %w", models.ErrValidation), http.StatusBadRequest, "bad_request"},
		{"anything else", errors.New("connection refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)

			RespondError(c, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.Error.Code)
			assert.Equal(t, tc.err.Error(), body.Error.Message)
		})
	}
}
