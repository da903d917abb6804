package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the part of the browser the login steps need.
type TestContext interface {
	Reset() error
	GET(path string) error
	PostForm(path string, form url.Values) error
	Status() int
	Location() string
	Body() string
	URL(path string) string
	HasCookie(name string) bool
}

// RegisterSteps registers login-flow step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^a fresh browser$`, steps.freshBrowser)
	ctx.Step(`^I open the login page$`, steps.openLogin)
	ctx.Step(`^I open the login page with return_to "([^"]*)"$`, steps.openLoginReturningTo)
	ctx.Step(`^I log in as "([^"]*)" with password "([^"]*)"$`, steps.logIn)
	ctx.Step(`^I log out$`, steps.logOut)
	ctx.Step(`^I request "([^"]*)"$`, steps.request)

	ctx.Step(`^I am redirected to "([^"]*)"$`, steps.redirectedTo)
	ctx.Step(`^I am redirected to the page "([^"]*)"$`, steps.redirectedToPage)
	ctx.Step(`^the response status is (\d+)$`, steps.statusIs)
	ctx.Step(`^the page shows "([^"]*)"$`, steps.pageShows)
	ctx.Step(`^I have an identity cookie$`, steps.hasIdentity)
	ctx.Step(`^I have no identity cookie$`, steps.noIdentity)
	ctx.Step(`^I remember the page$`, steps.rememberPage)
	ctx.Step(`^the page is identical to the remembered page$`, steps.samePage)
}

type authSteps struct {
	tc         TestContext
	remembered string
}

func (s *authSteps) freshBrowser(ctx context.Context) error {
	return s.tc.Reset()
}

func (s *authSteps) openLogin(ctx context.Context) error {
	return s.tc.GET("/login/new")
}

func (s *authSteps) openLoginReturningTo(ctx context.Context, returnTo string) error {
	return s.tc.GET("/login/new?return_to=" + url.QueryEscape(s.expand(returnTo)))
}

func (s *authSteps) logIn(ctx context.Context, email, password string) error {
	return s.tc.PostForm("/login", url.Values{"email": {email}, "password": {password}})
}

func (s *authSteps) logOut(ctx context.Context) error {
	return s.tc.GET("/logout")
}

func (s *authSteps) request(ctx context.Context, path string) error {
	return s.tc.GET(path)
}

func (s *authSteps) redirectedTo(ctx context.Context, target string) error {
	if got := s.tc.Location(); got != s.expand(target) {
		return fmt.Errorf("expected redirect to %q, got %q (status %d)", s.expand(target), got, s.tc.Status())
	}
	return nil
}

func (s *authSteps) redirectedToPage(ctx context.Context, path string) error {
	return s.redirectedTo(ctx, s.tc.URL(path))
}

func (s *authSteps) statusIs(ctx context.Context, status int) error {
	if s.tc.Status() != status {
		return fmt.Errorf("expected status %d, got %d", status, s.tc.Status())
	}
	return nil
}

func (s *authSteps) pageShows(ctx context.Context, text string) error {
	if !strings.Contains(s.tc.Body(), text) {
		return fmt.Errorf("expected page to contain %q", text)
	}
	return nil
}

func (s *authSteps) hasIdentity(ctx context.Context) error {
	if !s.tc.HasCookie("auth") {
		return fmt.Errorf("expected an identity cookie")
	}
	return nil
}

func (s *authSteps) noIdentity(ctx context.Context) error {
	if s.tc.HasCookie("auth") {
		return fmt.Errorf("expected no identity cookie")
	}
	return nil
}

func (s *authSteps) rememberPage(ctx context.Context) error {
	s.remembered = s.tc.Body()
	return nil
}

func (s *authSteps) samePage(ctx context.Context) error {
	if s.tc.Body() != s.remembered {
		return fmt.Errorf("pages differ")
	}
	return nil
}

// expand replaces {base} with the server's base URL.
func (s *authSteps) expand(v string) string {
	return strings.ReplaceAll(v, "{base}", s.tc.URL(""))
}
