// Package discourse implements the provider side of Discourse single sign-on.
// The forum sends a signed, base64-encoded query string; once the browser is
// logged in we answer with a signed payload describing the user.
package discourse

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
)

var (
	ErrSignatureMismatch = errors.New("sso signature mismatch")
	ErrMalformedPayload  = errors.New("malformed sso payload")
)

// Request is the forum's half of the handshake.
type Request struct {
	Nonce     string
	ReturnURL string
}

// Response describes the logged-in user to the forum.
type Response struct {
	Nonce      string
	Email      string
	ExternalID string
	Username   string
	Admin      bool
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret, payload, sig string) bool {
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hmac.Equal(got, mac.Sum(nil))
}

// ParseRequest checks sig before decoding payload.
func ParseRequest(secret, payload, sig string) (Request, error) {
	if !verify(secret, payload, sig) {
		return Request{}, ErrSignatureMismatch
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Request{}, errors.Join(ErrMalformedPayload, err)
	}
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return Request{}, errors.Join(ErrMalformedPayload, err)
	}
	req := Request{Nonce: values.Get("nonce"), ReturnURL: values.Get("return_sso_url")}
	if req.Nonce == "" || req.ReturnURL == "" {
		return Request{}, ErrMalformedPayload
	}
	return req, nil
}

// Encode returns the base64 payload and its signature.
func (r Response) Encode(secret string) (payload, sig string) {
	values := url.Values{
		"nonce":       {r.Nonce},
		"email":       {r.Email},
		"external_id": {r.ExternalID},
		"admin":       {strconv.FormatBool(r.Admin)},
	}
	if r.Username != "" {
		values.Set("username", r.Username)
	}
	payload = base64.StdEncoding.EncodeToString([]byte(values.Encode()))
	return payload, Sign(secret, payload)
}
