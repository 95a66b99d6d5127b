package chi

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/kailas-cloud/docrag/pkg/api"
)

// PublicPaths skip authentication so probes and scrapers need no key.
var PublicPaths = []string{"/health", "/metrics"}

// APIKeyAuth requires "Authorization: Bearer <key>" on every path outside
// public. With no non-empty keys it lets everything through.
func APIKeyAuth(keys []string, public ...string) func(http.Handler) http.Handler {
	var digests [][sha256.Size]byte
	for _, k := range keys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		if len(digests) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "expected Authorization: Bearer <key>")
				return
			}
			if !knownKey(digests, token) {
				unauthorized(w, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// knownKey compares digests so timing does not depend on key length or prefix.
func knownKey(digests [][sha256.Size]byte, token string) bool {
	sum := sha256.Sum256([]byte(token))
	match := 0
	for i := range digests {
		match |= subtle.ConstantTimeCompare(digests[i][:], sum[:])
	}
	return match == 1
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="docrag"`)
	writeError(w, http.StatusUnauthorized, api.CodeUnauthorized, message)
}
