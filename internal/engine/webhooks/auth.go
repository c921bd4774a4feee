package webhooks

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"mosaic/internal/platform/models"
)

// AuthResult is the outcome of validating an inbound request against a
// configuration's auth method. Malformed credentials are invalid, never
// an error.
type AuthResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// strategy is one variant of the closed auth-method set. One implementation
// per method keeps the dispatch a pattern match instead of string plumbing.
type strategy interface {
	validate(h http.Header) AuthResult
}

type noneAuth struct{}

type basicAuth struct {
	username string
	password string
}

type bearerAuth struct {
	token string
}

type oauthAuth struct {
	authorizeURL string
	clientID     string
	clientSecret string
}

// Authenticate validates the request headers against the configured method.
func Authenticate(cfg models.AuthConfig, h http.Header) AuthResult {
	var s strategy
	switch cfg.Method {
	case models.AuthMethodNone:
		s = noneAuth{}
	case models.AuthMethodBasic:
		s = basicAuth{username: cfg.Username, password: cfg.Password}
	case models.AuthMethodBearer:
		s = bearerAuth{token: cfg.Token}
	case models.AuthMethodOAuth:
		s = oauthAuth{authorizeURL: cfg.AuthorizeURL, clientID: cfg.ClientID, clientSecret: cfg.ClientSecret}
	default:
		return AuthResult{Valid: false, Reason: "unknown authentication method"}
	}
	return s.validate(h)
}

func (noneAuth) validate(http.Header) AuthResult {
	return AuthResult{Valid: true}
}

func (a basicAuth) validate(h http.Header) AuthResult {
	raw, ok := credential(h, "Basic")
	if !ok {
		return AuthResult{Valid: false, Reason: "missing basic credentials"}
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return AuthResult{Valid: false, Reason: "credentials not base64"}
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return AuthResult{Valid: false, Reason: "credentials not user:pass"}
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return AuthResult{Valid: false, Reason: "credential mismatch"}
	}
	return AuthResult{Valid: true}
}

func (a bearerAuth) validate(h http.Header) AuthResult {
	token, ok := credential(h, "Bearer")
	if !ok {
		return AuthResult{Valid: false, Reason: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
		return AuthResult{Valid: false, Reason: "token mismatch"}
	}
	return AuthResult{Valid: true}
}

// oauthMinTokenLength guards against obviously bogus tokens. Full
// verification against the configured authorization server is still open;
// accepted tokens are flagged as not independently verified.
const oauthMinTokenLength = 16

func (a oauthAuth) validate(h http.Header) AuthResult {
	token, ok := credential(h, "Bearer")
	if !ok {
		return AuthResult{Valid: false, Reason: "missing bearer token"}
	}
	if len(token) < oauthMinTokenLength {
		return AuthResult{Valid: false, Reason: "token too short"}
	}
	return AuthResult{Valid: true, Reason: "token not independently verified"}
}

// credential pulls the value of an Authorization header with the given
// scheme. Scheme comparison is case-insensitive per RFC 7235.
func credential(h http.Header, scheme string) (string, bool) {
	header := h.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], scheme) {
		return "", false
	}
	value := strings.TrimSpace(parts[1])
	return value, value != ""
}
