package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/apperror"
)

func TestNewPageResponse(t *testing.T) {
	p := NewPageResponse[string](nil, 2, 20, 41)
	assert.NotNil(t, p.Items)
	assert.Equal(t, 3, p.TotalPages)

	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"items":[]`)
}

func TestError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"app error", apperror.New(http.StatusConflict, "taken"), http.StatusConflict, "taken"},
		{"wrapped cause hidden", apperror.Wrap(errors.New("secret dsn"), http.StatusBadGateway, "upstream failed"), http.StatusBadGateway, "upstream failed"},
		{"plain error", errors.New("secret dsn"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Error(c, tc.err)

			assert.Equal(t, tc.code, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.body, resp.Error)
			assert.NotContains(t, w.Body.String(), "secret")
		})
	}
}
