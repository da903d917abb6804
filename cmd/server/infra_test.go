package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bikeauth/internal/auth/redirect"
	"bikeauth/internal/platform/config"
)

func TestBuildResolver(t *testing.T) {
	cfg := config.Default()
	cfg.Server.BaseURL = "http://testhost.com"

	resolver, err := buildResolver(cfg)
	require.NoError(t, err)

	assert.Equal(t, "http://testhost.com/user_home", resolver.Destinations.UserHome)
	assert.Equal(t, "http://testhost.com/admin/news", resolver.Destinations.AdminHome)
	assert.Equal(t, "http://testhost.com/discourse_authentication", resolver.Destinations.SSOEndpoint)

	for candidate, want := range map[string]bool{
		"/oauth/authorize?client_id=1":               true,
		"http://testhost.com/bikes/12/edit":          true,
		"https://facebook.com/bikeindex":             true,
		"https://facebook.com/bikeindex-mean":        false,
		"http://testhost.com/bad_place?f=/user_home": false,
	} {
		assert.Equal(t, want, resolver.Checker.IsSafe(candidate), candidate)
	}

	d := resolver.Resolve(redirect.Hints{ReturnTo: "/my_account"}, false)
	assert.Equal(t, "/my_account", d.URL)
}

func TestOpenInfraInMemory(t *testing.T) {
	cfg := config.Default()
	cfg.SeedUsers = []config.SeedUser{
		{Email: "Rider@Example.com", Password: "secret-pass", Confirmed: true},
		{Email: "rider@example.com", Password: "duplicate"},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	in, err := openInfra(context.Background(), cfg, log)
	require.NoError(t, err)
	defer in.Close()

	user, err := in.users.FindByFuzzyEmail(context.Background(), "rider@example.com")
	require.NoError(t, err)
	ok, err := in.users.Authenticate(context.Background(), user, "secret-pass")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, in.Health(context.Background()))
}
