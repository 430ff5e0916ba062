package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// verifyHMAC checks a hex HMAC-SHA256 of body carried in header. An empty
// secret never verifies.
func verifyHMAC(headers http.Header, header, secret string, body []byte) bool {
	if secret == "" {
		return false
	}

	got := strings.TrimPrefix(strings.TrimSpace(headers.Get(header)), "sha256=")
	sig, err := hex.DecodeString(got)
	if err != nil || len(sig) == 0 {
		return false
	}

	return hmac.Equal(sig, signHMAC(secret, body))
}

func signHMAC(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignHMAC returns the hex signature a sender must put in the header.
func SignHMAC(secret string, body []byte) string {
	return hex.EncodeToString(signHMAC(secret, body))
}
