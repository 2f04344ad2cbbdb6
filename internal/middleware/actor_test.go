package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func performRequest(t *testing.T, secret, header string, setup func(*http.Request)) (*httptest.ResponseRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var actor string
	r.GET("/whoami", Actor(secret, header), func(c *gin.Context) {
		actor = ActorID(c)
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/whoami", nil)
	require.NoError(t, err)
	if setup != nil {
		setup(req)
	}
	r.ServeHTTP(w, req)
	return w, actor
}

func TestActorMissingIdentity(t *testing.T) {
	w, _ := performRequest(t, "secret", "X-Actor-ID", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestActorHeaderFallback(t *testing.T) {
	w, actor := performRequest(t, "secret", "X-Actor-ID", func(req *http.Request) {
		req.Header.Set("X-Actor-ID", "chief-resident")
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "chief-resident", actor)
}

func TestActorBearerToken(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "dr-house",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	w, actor := performRequest(t, "secret", "X-Actor-ID", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+signed)
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dr-house", actor)
}

func TestActorRejectsForgedToken(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "intruder"})
	signed, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	w, _ := performRequest(t, "secret", "", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+signed)
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
