package proteus

import (
	"net/http"

	"github.com/raterudder/proteus/pkg/types"
)

const (
	sessionCookieName = "proteus_session"
	csrfCookieName    = "proteus_csrf"
)

// parseSessionCookies pulls the session and anti-forgery cookies out of the
// Set-Cookie headers. ok is false unless both were found.
func parseSessionCookies(h http.Header) (types.Session, bool) {
	var sess types.Session
	for _, line := range h.Values("Set-Cookie") {
		c, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		switch c.Name {
		case sessionCookieName:
			sess.Token = c.Value
		case csrfCookieName:
			sess.CSRF = c.Value
		}
	}
	if !sess.Valid() {
		return types.Session{}, false
	}
	return sess, true
}

// cookieHeader builds the Cookie header sent with every batch.
func cookieHeader(sess types.Session) string {
	return csrfCookieName + "=" + sess.CSRF + "; " + sessionCookieName + "=" + sess.Token
}
