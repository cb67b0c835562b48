package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// Access is the classification result of a pull-access probe.
type Access string

const (
	Public       Access = "Public"
	AuthRequired Access = "AuthRequired"
	Unknown      Access = "Unknown"
)

var challengeParam = regexp.MustCompile(`(\w+)="([^"]*)"`)

// Checker probes a registry area to classify whether an anonymous pull
// would succeed, requires authentication, or could not be determined.
type Checker struct {
	client *http.Client
	scheme string
}

// NewChecker creates a registry access probe using the shared HTTP client.
func NewChecker() *Checker {
	return &Checker{client: httpClient, scheme: "https"}
}

// CheckAccess runs the full Docker Registry v2 bearer-token classification
// flow for (host, namespace, repository). It never returns an error: any
// timeout, connection failure, or malformed response classifies as Unknown.
func (c *Checker) CheckAccess(ctx context.Context, host, namespace, repository string, creds Credentials) Access {
	v2Host := host
	if host == "docker.io" {
		v2Host = "registry-1.docker.io"
	}

	challenge, access, done := c.probeV2(ctx, v2Host)
	if done {
		return access
	}

	realm, service, ok := parseChallenge(challenge)
	if !ok {
		return Unknown
	}

	scope := fmt.Sprintf("repository:%s/%s:pull", namespace, repository)
	token, access, done := c.fetchToken(ctx, realm, service, scope, creds)
	if done {
		return access
	}

	return c.verifyTagsList(ctx, v2Host, namespace, repository, token)
}

// probeV2 issues the unauthenticated GET /v2/ request. done=true means the
// caller should return access immediately; done=false means the caller
// should continue with the WWW-Authenticate challenge in the returned string.
func (c *Checker) probeV2(ctx context.Context, v2Host string) (challenge string, access Access, done bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.scheme+"://"+v2Host+"/v2/", nil)
	if err != nil {
		return "", Unknown, true
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", Unknown, true
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusOK {
		return "", Public, true
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return "", Unknown, true
	}
	return resp.Header.Get("WWW-Authenticate"), "", false
}

// parseChallenge extracts realm and service from a
// `Bearer realm="...",service="...",scope="..."` challenge header.
func parseChallenge(header string) (realm, service string, ok bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "", false
	}
	params := make(map[string]string)
	for _, m := range challengeParam.FindAllStringSubmatch(header, -1) {
		params[m[1]] = m[2]
	}
	realm = params["realm"]
	if realm == "" {
		return "", "", false
	}
	return realm, params["service"], true
}

func (c *Checker) fetchToken(ctx context.Context, realm, service, scope string, creds Credentials) (token string, access Access, done bool) {
	u := realm + "?service=" + service + "&scope=" + scope
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", Unknown, true
	}
	if !creds.empty() {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", Unknown, true
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", AuthRequired, true
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Unknown, true
	}
	bearer, ok := decodeToken(body)
	if !ok {
		return "", Unknown, true
	}
	return bearer, "", false
}

// verifyTagsList is the mandatory verification step: Docker Hub hands out
// tokens for private repos that lack pull scope, so a successful token
// fetch alone does not prove the repo is public.
func (c *Checker) verifyTagsList(ctx context.Context, v2Host, namespace, repository, token string) Access {
	u := fmt.Sprintf("%s://%s/v2/%s/%s/tags/list?n=1", c.scheme, v2Host, namespace, repository)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Unknown
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return Unknown
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Public
	}
	return AuthRequired
}
