package httpapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

// ShutdownHandler lets the local desktop shell stop the engine. The caller
// must be on loopback and present the token in X-Shutdown-Token.
func ShutdownHandler(token string, shutdown func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !localOnly(r) {
			WriteError(w, r, http.StatusForbidden, "forbidden", "local requests only")
			return
		}

		got := r.Header.Get("X-Shutdown-Token")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			WriteError(w, r, http.StatusUnauthorized, "unauthorized", "bad shutdown token")
			return
		}

		// Respond immediately, then shut down asynchronously
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "shutting down"})
		go shutdown()
	}
}

// RandomToken returns n random bytes hex-encoded.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
