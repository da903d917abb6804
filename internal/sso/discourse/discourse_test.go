package discourse

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"bikeauth/internal/auth/identity"
	"bikeauth/internal/auth/models"
	"bikeauth/internal/platform/metrics"
	"bikeauth/internal/sso/discourse/mocks"
	id "bikeauth/pkg/domain"
	dErrors "bikeauth/pkg/domain-errors"
	"bikeauth/pkg/platform/audit"
	auditmocks "bikeauth/pkg/platform/audit/mocks"
	"bikeauth/pkg/testutil"
)

const (
	testSecret = "forum-shared-secret"
	testForum  = "https://forum.example.com"
	testLogin  = "http://testhost.com/login/new"
	ssoPath    = "/discourse_authentication"
)

func forumRequest(secret, nonce, returnURL string) (payload, sig string) {
	raw := url.Values{"nonce": {nonce}, "return_sso_url": {returnURL}}.Encode()
	payload = base64.StdEncoding.EncodeToString([]byte(raw))
	return payload, Sign(secret, payload)
}

func ssoQuery(payload, sig string) string {
	return ssoPath + "?" + url.Values{"sso": {payload}, "sig": {sig}}.Encode()
}

// decodeResponse checks the signature on a redirect back to the forum and
// returns the decoded fields.
func decodeResponse(t *testing.T, location string) (*url.URL, url.Values) {
	t.Helper()
	u, err := url.Parse(location)
	require.NoError(t, err)
	payload, sig := u.Query().Get("sso"), u.Query().Get("sig")
	require.Equal(t, Sign(testSecret, payload), sig)
	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	values, err := url.ParseQuery(string(raw))
	require.NoError(t, err)
	return u, values
}

func TestParseRequest(t *testing.T) {
	t.Run("valid request", func(t *testing.T) {
		payload, sig := forumRequest(testSecret, "abc", testForum+"/session/sso_login")
		req, err := ParseRequest(testSecret, payload, sig)
		require.NoError(t, err)
		assert.Equal(t, "abc", req.Nonce)
		assert.Equal(t, testForum+"/session/sso_login", req.ReturnURL)
	})

	t.Run("wrong secret", func(t *testing.T) {
		payload, sig := forumRequest("other-secret", "abc", testForum)
		_, err := ParseRequest(testSecret, payload, sig)
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("tampered payload", func(t *testing.T) {
		payload, sig := forumRequest(testSecret, "abc", testForum)
		other, _ := forumRequest(testSecret, "abc", "https://evil.example.com")
		_, err := ParseRequest(testSecret, other, sig)
		assert.ErrorIs(t, err, ErrSignatureMismatch)
		_, err = ParseRequest(testSecret, payload, "not-hex")
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("signed garbage", func(t *testing.T) {
		_, err := ParseRequest(testSecret, "%%%", Sign(testSecret, "%%%"))
		assert.ErrorIs(t, err, ErrMalformedPayload)

		empty := base64.StdEncoding.EncodeToString([]byte("nonce=abc"))
		_, err = ParseRequest(testSecret, empty, Sign(testSecret, empty))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})
}

func TestResponseEncode(t *testing.T) {
	payload, sig := Response{Nonce: "n", Email: "rider@example.com", ExternalID: "42", Admin: true}.Encode(testSecret)
	assert.Equal(t, Sign(testSecret, payload), sig)

	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	values, err := url.ParseQuery(string(raw))
	require.NoError(t, err)
	assert.Equal(t, "n", values.Get("nonce"))
	assert.Equal(t, "rider@example.com", values.Get("email"))
	assert.Equal(t, "42", values.Get("external_id"))
	assert.Equal(t, "true", values.Get("admin"))
	assert.False(t, values.Has("username"))
}

func TestNewValidatesConfig(t *testing.T) {
	ctrl := gomock.NewController(t)
	stash := mocks.NewMockStasher(ctrl)
	valid := Config{Secret: testSecret, ForumURL: testForum, LoginURL: testLogin}

	_, err := New(stash, valid, identity.Cookies{})
	require.NoError(t, err)

	for name, cfg := range map[string]Config{
		"no secret":      {ForumURL: testForum, LoginURL: testLogin},
		"relative forum": {Secret: testSecret, ForumURL: "/forum", LoginURL: testLogin},
		"no login url":   {Secret: testSecret, ForumURL: testForum},
	} {
		_, err := New(stash, cfg, identity.Cookies{})
		assert.Error(t, err, name)
	}
	_, err = New(nil, valid, identity.Cookies{})
	assert.Error(t, err)
}

type HandlerSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStash *mocks.MockStasher
	mockAudit *auditmocks.MockEmitter
	metrics   *metrics.Metrics
	router    chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStash = mocks.NewMockStasher(s.ctrl)
	s.mockAudit = auditmocks.NewMockEmitter(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())

	h, err := New(s.mockStash, Config{Secret: testSecret, ForumURL: testForum, LoginURL: testLogin}, identity.Cookies{},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithAuditEmitter(s.mockAudit),
	)
	s.Require().NoError(err)
	s.router = chi.NewRouter()
	h.Register(s.router, ssoPath)
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) handshakes(result string) float64 {
	return promtest.ToFloat64(s.metrics.SSOHandshakes.WithLabelValues(result))
}

func (s *HandlerSuite) TestMissingParameters() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, ssoPath+"?sso=abc"))

	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	s.Equal(1.0, s.handshakes(metrics.SSOBadRequest))
}

func (s *HandlerSuite) TestSignatureMismatch() {
	payload, _ := forumRequest(testSecret, "abc", testForum)
	s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Cond(func(e audit.SecurityEvent) bool {
		return e.Action == string(audit.EventSSOSigMismatch)
	}))

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, ssoQuery(payload, Sign("wrong", payload))))

	testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	s.Equal(1.0, s.handshakes(metrics.SSOSignatureMismatch))
}

func (s *HandlerSuite) TestAnonymousIsStashedAndSentToLogin() {
	payload, sig := forumRequest(testSecret, "abc", testForum+"/session/sso_login")
	sessionID := id.NewSessionID()
	s.mockStash.EXPECT().
		StashDiscourseRedirect(gomock.Any(), id.SessionID{}, url.Values{"sso": {payload}, "sig": {sig}}.Encode()).
		Return(&models.LoginResult{State: models.StateAnonymous, SessionID: sessionID}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, ssoQuery(payload, sig)))

	testutil.AssertRedirect(s.T(), rr, http.StatusFound, testLogin)
	cookie := testutil.ResponseCookie(rr, identity.SessionCookieName)
	s.Require().NotNil(cookie)
	s.Equal(sessionID.String(), cookie.Value)
	s.Equal(1.0, s.handshakes(metrics.SSOStashed))
}

func (s *HandlerSuite) TestStashFailure() {
	payload, sig := forumRequest(testSecret, "abc", testForum)
	s.mockStash.EXPECT().StashDiscourseRedirect(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, dErrors.Wrap(errors.New("redis down"), dErrors.CodeInternal, "failed to save session"))

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, ssoQuery(payload, sig)))

	testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
}

func (s *HandlerSuite) TestLoggedInUserIsSentBackSigned() {
	user := &models.User{ID: id.NewUserID(), Email: "editor@example.com", Username: "editor", IsContentAdmin: true}
	payload, sig := forumRequest(testSecret, "nonce-1", testForum+"/session/sso_login")
	s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Cond(func(e audit.SecurityEvent) bool {
		return e.Action == string(audit.EventSSOHandshake) && e.Subject == user.ID.String()
	}))

	req := testutil.WithUser(testutil.NewRequest(s.T(), http.MethodGet, ssoQuery(payload, sig)), user)
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusFound)
	target, values := decodeResponse(s.T(), rr.Header().Get("Location"))
	s.Equal("forum.example.com", target.Host)
	s.Equal("/session/sso_login", target.Path)
	s.Equal("nonce-1", values.Get("nonce"))
	s.Equal(user.Email, values.Get("email"))
	s.Equal(user.ID.String(), values.Get("external_id"))
	s.Equal("editor", values.Get("username"))
	s.Equal("true", values.Get("admin"))
	s.Equal(1.0, s.handshakes(metrics.SSOCompleted))
}

func (s *HandlerSuite) TestMissingUsernameIsDerivedFromEmail() {
	user := &models.User{ID: id.NewUserID(), Email: "rider.smith+bikes@example.com"}
	payload, sig := forumRequest(testSecret, "nonce-2", testForum+"/session/sso_login")
	s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any())

	req := testutil.WithUser(testutil.NewRequest(s.T(), http.MethodGet, ssoQuery(payload, sig)), user)
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusFound)
	_, values := decodeResponse(s.T(), rr.Header().Get("Location"))
	s.Equal("rider_smith", values.Get("username"))
	s.Equal("false", values.Get("admin"))
}

func (s *HandlerSuite) TestForeignReturnURLIsRefused() {
	user := &models.User{ID: id.NewUserID(), Email: "rider@example.com"}
	for _, returnURL := range []string{
		"https://evil.example.com/session/sso_login",
		"http://forum.example.com/session/sso_login",
		"https://forum.example.com.evil.example/session/sso_login",
		"https://user@forum.example.com/session/sso_login",
	} {
		payload, sig := forumRequest(testSecret, "abc", returnURL)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any())

		req := testutil.WithUser(testutil.NewRequest(s.T(), http.MethodGet, ssoQuery(payload, sig)), user)
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		s.Empty(rr.Header().Get("Location"), returnURL)
	}
	s.Equal(4.0, s.handshakes(metrics.SSOForeignReturnURL))
}

func TestReturnURLUnderForumPath(t *testing.T) {
	h, err := New(mocks.NewMockStasher(gomock.NewController(t)),
		Config{Secret: testSecret, ForumURL: "https://example.com/forum/", LoginURL: testLogin}, identity.Cookies{})
	require.NoError(t, err)

	for raw, want := range map[string]bool{
		"https://example.com/forum":                   true,
		"https://example.com/forum/session/sso_login": true,
		"https://EXAMPLE.com/forum/session/sso_login": true,
		"https://example.com/forum-evil/sso":          false,
		"https://example.com/other":                   false,
	} {
		_, ok := h.returnURL(raw)
		assert.Equal(t, want, ok, raw)
	}
}
