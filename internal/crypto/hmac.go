package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// APICreds are the L2 credentials issued by the CLOB for a wallet.
type APICreds struct {
	Key        string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// L2Headers returns the authentication headers for one CLOB request made at
// unix time ts. The signature is HMAC-SHA256 over ts+method+path+body keyed
// with the url-safe base64 decoded secret.
func (c APICreds) L2Headers(address, method, path, body string, ts int64) (map[string]string, error) {
	secret, err := base64.URLEncoding.DecodeString(c.Secret)
	if err != nil {
		// Some credentials are issued without padding.
		if secret, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(c.Secret, "=")); err != nil {
			return nil, fmt.Errorf("crypto: decode api secret: %w", err)
		}
	}
	tss := strconv.FormatInt(ts, 10)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(tss + method + path + body))

	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    c.Key,
		"POLY_TIMESTAMP":  tss,
		"POLY_PASSPHRASE": c.Passphrase,
		"POLY_SIGNATURE":  base64.URLEncoding.EncodeToString(mac.Sum(nil)),
	}, nil
}

// String redacts the credentials for logging.
func (c APICreds) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("APICreds{key=%s, secret=%s}", redact(c.Key), redact(c.Secret))
}
