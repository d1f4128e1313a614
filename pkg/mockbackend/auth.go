package mockbackend

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// keyAuthenticator checks the bearer credential of each request. Keys are
// kept only as SHA-256 hashes and compared in constant time.
type keyAuthenticator struct {
	hashes [][32]byte
}

func newKeyAuthenticator(keys []string) *keyAuthenticator {
	a := &keyAuthenticator{}
	for _, k := range keys {
		a.hashes = append(a.hashes, sha256.Sum256([]byte(k)))
	}
	return a
}

// allow reports whether token is acceptable. With no configured keys any
// non-empty token passes.
func (a *keyAuthenticator) allow(token string) bool {
	if token == "" {
		return false
	}
	if len(a.hashes) == 0 {
		return true
	}

	h := sha256.Sum256([]byte(token))
	for _, k := range a.hashes {
		if subtle.ConstantTimeCompare(h[:], k[:]) == 1 {
			return true
		}
	}
	return false
}

func (a *keyAuthenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.allow(bearerToken(r)) {
			slog.Warn("mock backend rejected request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "Invalid API Key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the credential from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
