package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth checks the Authorization header against a static token. An empty token disables
// the check.
type BearerAuth struct {
	Token string
}

func (a BearerAuth) Authorize(r *http.Request) bool {
	if a.Token == "" {
		return true
	}
	head := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(head, prefix) {
		return false
	}
	candidate := strings.TrimSpace(strings.TrimPrefix(head, prefix))
	if len(candidate) != len(a.Token) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(a.Token)) == 1
}
