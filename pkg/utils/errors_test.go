package utils

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"domain", ValidationError("name required"), http.StatusBadRequest, `{"code":"VALIDATION_ERROR","error":"name required"}`},
		{"wrapped domain", fmt.Errorf("create: %w", NotFound("dish not found")), http.StatusNotFound, `{"code":"NOT_FOUND","error":"dish not found"}`},
		{"plain", errors.New("disk on fire"), http.StatusInternalServerError, `{"code":"SERVER_ERROR","error":"internal error"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			RespondError(c, tc.err)
			assert.Equal(t, tc.status, w.Code)
			assert.JSONEq(t, tc.body, w.Body.String())
		})
	}
}
