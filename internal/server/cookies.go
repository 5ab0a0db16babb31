package server

import (
	"net/http"
	"time"
)

const (
	// CookieName carries the gateway session ID between page loads.
	CookieName = "medirep_session"
	// CookieMaxAge bounds how long an idle conversation stays addressable.
	CookieMaxAge = 30 * time.Minute
)

func sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   false, // the gateway sits behind TLS termination in deployment
	}
}

// SetSessionCookie binds the browser to its live session.
func SetSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, sessionCookie(sessionID, int(CookieMaxAge.Seconds())))
}

// ClearSessionCookie expires the binding; used by the session reset endpoint.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, sessionCookie("", -1))
}

// GetSessionCookie reads the session ID the browser presented, if any.
func GetSessionCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
