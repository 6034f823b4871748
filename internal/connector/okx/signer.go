package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// signer produces the OK-ACCESS request headers for OKX's v5 REST API. The
// pre-sign string is timestamp + method + requestPath + body, signed with
// HMAC-SHA256 and base64 encoded.
type signer struct {
	apiKey     string
	secretKey  []byte
	passphrase string
}

func newSigner(apiKey, secretKey, passphrase string) *signer {
	return &signer{
		apiKey:     apiKey,
		secretKey:  []byte(secretKey),
		passphrase: passphrase,
	}
}

// headers returns the authentication headers for one request. requestPath
// must include the query string.
func (s *signer) headers(method, requestPath, body string, at time.Time) map[string]string {
	timestamp := at.UTC().Format("2006-01-02T15:04:05.000Z")

	return map[string]string{
		"OK-ACCESS-KEY":        s.apiKey,
		"OK-ACCESS-SIGN":       s.sign(timestamp + method + requestPath + body),
		"OK-ACCESS-TIMESTAMP":  timestamp,
		"OK-ACCESS-PASSPHRASE": s.passphrase,
		"Content-Type":         "application/json",
	}
}

func (s *signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
