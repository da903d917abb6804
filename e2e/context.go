// Package e2e drives a running bikeauth server through the browser login flow.
// Start the server with e2e/config.yaml and point E2E_BASE_URL at it.
package e2e

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
)

// TestContext is a single browser: it keeps cookies and never follows redirects.
type TestContext struct {
	BaseURL string

	client   *http.Client
	status   int
	location string
	body     string
}

func NewTestContext() (*TestContext, error) {
	base := os.Getenv("E2E_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	tc := &TestContext{BaseURL: strings.TrimRight(base, "/")}
	return tc, tc.Reset()
}

// Reset starts a fresh browser with an empty cookie jar.
func (tc *TestContext) Reset() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	tc.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	tc.status, tc.location, tc.body = 0, "", ""
	return nil
}

func (tc *TestContext) GET(path string) error {
	req, err := http.NewRequest(http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return tc.do(req)
}

func (tc *TestContext) PostForm(path string, form url.Values) error {
	req, err := http.NewRequest(http.MethodPost, tc.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.status = resp.StatusCode
	tc.location = resp.Header.Get("Location")
	tc.body = string(body)
	return nil
}

func (tc *TestContext) Status() int         { return tc.status }
func (tc *TestContext) Location() string    { return tc.location }
func (tc *TestContext) Body() string        { return tc.body }
func (tc *TestContext) URL(p string) string { return tc.BaseURL + p }

// HasCookie reports whether the jar holds a non-empty cookie for the server.
func (tc *TestContext) HasCookie(name string) bool {
	u, err := url.Parse(tc.BaseURL)
	if err != nil {
		return false
	}
	for _, c := range tc.client.Jar.Cookies(u) {
		if c.Name == name && c.Value != "" {
			return true
		}
	}
	return false
}
