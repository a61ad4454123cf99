package httperrors

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(t *testing.T, fn func(*gin.Context)) (int, ErrorResponse) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	fn(c)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestRespondBadRequest(t *testing.T) {
	code, body := respond(t, func(c *gin.Context) {
		RespondBadRequest(c, "username is required")
	})
	assert.Equal(t, 400, code)
	assert.Equal(t, "username is required", body.Error)
	assert.Equal(t, CodeBadRequest, body.Code)
}

func TestRespondBadRequest_DefaultMessage(t *testing.T) {
	code, body := respond(t, func(c *gin.Context) {
		RespondBadRequest(c, "")
	})
	assert.Equal(t, 400, code)
	assert.Equal(t, MsgBadRequest, body.Error)
}

func TestRespondForbidden(t *testing.T) {
	code, body := respond(t, RespondForbidden)
	assert.Equal(t, 403, code)
	assert.Equal(t, CodeForbidden, body.Code)
}

func TestRespondTooManyRequests(t *testing.T) {
	code, body := respond(t, RespondTooManyRequests)
	assert.Equal(t, 429, code)
	assert.Equal(t, CodeTooManyRequests, body.Code)
}

func TestRespondInternalError(t *testing.T) {
	code, body := respond(t, RespondInternalError)
	assert.Equal(t, 500, code)
	assert.Equal(t, MsgInternalError, body.Error)
}

func TestRespondServiceUnavailable(t *testing.T) {
	code, body := respond(t, RespondServiceUnavailable)
	assert.Equal(t, 503, code)
	assert.Equal(t, CodeServiceUnavailable, body.Code)
}
