package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/ctxutil"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

func authTestRouter(am *AuthMiddleware) (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.Use(am.RequireAuthor())
	r.GET("/probe", func(c *gin.Context) {
		seen = ctxutil.Author(c.Request.Context())
		c.Status(http.StatusOK)
	})
	return r, &seen
}

func TestRequireAuthorDisabledUsesHeader(t *testing.T) {
	am := NewAuthMiddleware(logger.NewNop(), "", true)
	r, seen := authTestRouter(am)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Author-Initials", "JD")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusOK)
	}
	if *seen != "JD" {
		t.Fatalf("unexpected author: got=%q want=%q", *seen, "JD")
	}
}

func TestRequireAuthorDisabledFallsBackToUnknown(t *testing.T) {
	am := NewAuthMiddleware(logger.NewNop(), "", true)
	r, seen := authTestRouter(am)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe", nil))

	if *seen != "unknown-user" {
		t.Fatalf("unexpected author: got=%q want=%q", *seen, "unknown-user")
	}
}

func TestRequireAuthorRejectsMissingToken(t *testing.T) {
	am := NewAuthMiddleware(logger.NewNop(), "secret", false)
	r, _ := authTestRouter(am)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthorAcceptsSignedToken(t *testing.T) {
	const secret = "secret"
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"initials": "AB",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	am := NewAuthMiddleware(logger.NewNop(), secret, false)
	r, seen := authTestRouter(am)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusOK)
	}
	if *seen != "AB" {
		t.Fatalf("unexpected author: got=%q want=%q", *seen, "AB")
	}
}

func TestRequireAuthorRejectsWrongSecret(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"initials": "AB",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	am := NewAuthMiddleware(logger.NewNop(), "secret", false)
	r, _ := authTestRouter(am)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusUnauthorized)
	}
}
