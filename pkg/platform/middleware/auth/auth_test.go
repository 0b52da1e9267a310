package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "nameaffirm/pkg/domain"
	"nameaffirm/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	type seen struct {
		userID id.UserID
		staff  bool
		name   string
	}

	run := func(v JWTValidator, header string) (*httptest.ResponseRecorder, *seen) {
		var got *seen
		h := RequireAuth(v, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = &seen{
				userID: requestcontext.UserID(r.Context()),
				staff:  requestcontext.IsStaff(r.Context()),
				name:   requestcontext.Username(r.Context()),
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec, got
	}

	t.Run("valid token populates context", func(t *testing.T) {
		rec, got := run(stubValidator{claims: &JWTClaims{UserID: 7, Username: "jdoe", Staff: true}}, "Bearer tok")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, got)
		assert.Equal(t, id.UserID(7), got.userID)
		assert.True(t, got.staff)
		assert.Equal(t, "jdoe", got.name)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		rec, got := run(stubValidator{}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, got)
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		rec, got := run(stubValidator{err: errors.New("expired")}, "Bearer tok")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid or expired token")
		assert.Nil(t, got)
	})

	t.Run("token without user rejected", func(t *testing.T) {
		rec, got := run(stubValidator{claims: &JWTClaims{}}, "Bearer tok")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, got)
	})
}
