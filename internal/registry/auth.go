package registry

import (
	"encoding/json"
	"net/http"
	"time"
)

// httpClient is the shared HTTP client used for all registry probe
// requests. A 10s timeout matches spec.md's recommended default.
var httpClient = &http.Client{Timeout: 10 * time.Second}

// Credentials are optional Basic auth credentials supplied by the caller
// for the token-exchange step. A zero value means "anonymous".
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) empty() bool {
	return c.Username == "" && c.Password == ""
}

// tokenResponse holds the bearer token returned by a registry auth
// endpoint. Registries inconsistently use "token" or "access_token".
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

func (t tokenResponse) bearer() string {
	if t.Token != "" {
		return t.Token
	}
	return t.AccessToken
}

func decodeToken(body []byte) (string, bool) {
	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", false
	}
	bearer := tok.bearer()
	return bearer, bearer != ""
}
