package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

type userIDKey struct{}

// UserIDFromContext extracts the authenticated user ID from the context. It
// returns an empty string for unauthenticated requests.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RequireUser authenticates shoppers via an HMAC-signed bearer token carrying
// a "sub" claim with the user ID.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.parseUserToken(r)
		if err != nil {
			fail(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) parseUserToken(r *http.Request) (string, error) {
	raw := r.Header.Get("Authorization")
	raw = strings.TrimPrefix(raw, "Bearer ")
	if raw == "" {
		return "", errors.New("missing token")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.cfg.JWTSecret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.Wrap(err, "parse token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token missing subject")
	}
	return sub, nil
}

// RequireSeller authenticates seller and operator requests via an API key in
// the api_key header. Keys are stored as HMAC-SHA256 hashes; the comparison
// is constant-time.
func (h *Handler) RequireSeller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("api_key")
		if key == "" {
			fail(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		mac := hmac.New(sha256.New, h.cfg.APIKeyPepper)
		mac.Write([]byte(key))
		hash := mac.Sum(nil)

		info, err := h.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			fail(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
			fail(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !info.HasScope("seller") {
			fail(w, r, http.StatusForbidden, "insufficient scope")
			return
		}

		next.ServeHTTP(w, r)
	})
}
