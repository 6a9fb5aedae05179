package api

import (
	"net/http"

	"github.com/go-chi/jwtauth"

	"github.com/DH-Cologne/ObjectsRepositoryServer/pkg/objectsrepository"
)

// Claim names carried in the session token.
const (
	ClaimUsername  = "username"
	ClaimSessionID = "sessionID"
)

// NewSessionAuth builds the token authority the handler verifies session
// tokens against.
func NewSessionAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// SessionToken mints a session token for the given identity. The server
// trusts an upstream LDAP proxy for authentication; the token only
// transports the established identity between requests.
func SessionToken(auth *jwtauth.JWTAuth, session objectsrepository.Session) (string, error) {
	_, token, err := auth.Encode(map[string]interface{}{
		ClaimUsername:  session.Username,
		ClaimSessionID: session.SessionID,
	})
	return token, err
}

// sessionFromRequest extracts the verified session identity, if any. An
// absent or invalid token yields the anonymous session; endpoints that
// need an identity reject it themselves.
func sessionFromRequest(r *http.Request) objectsrepository.Session {
	token, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || token == nil {
		return objectsrepository.Session{}
	}

	var session objectsrepository.Session
	if username, ok := claims[ClaimUsername].(string); ok {
		session.Username = username
	}
	if sessionID, ok := claims[ClaimSessionID].(string); ok {
		session.SessionID = sessionID
	}
	return session
}
