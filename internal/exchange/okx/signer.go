package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Credentials are the key material of one OKX API key.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
}

// Signer produces OK-ACCESS-* headers for private endpoints.
type Signer struct {
	creds Credentials
	now   func() time.Time
}

// NewSigner creates a Signer. A nil clock defaults to time.Now.
func NewSigner(creds Credentials, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{creds: creds, now: now}
}

// Timestamp returns the current time in the format OKX expects.
func (s *Signer) Timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

// Sign returns base64(HMAC-SHA256(secret, timestamp+method+requestPath+body)).
func (s *Signer) Sign(timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(s.creds.SecretKey))
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Apply sets the authentication headers on req.
func (s *Signer) Apply(req *http.Request, requestPath, body string) {
	ts := s.Timestamp()
	req.Header.Set("OK-ACCESS-KEY", s.creds.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", s.Sign(ts, req.Method, requestPath, body))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", s.creds.Passphrase)
}
