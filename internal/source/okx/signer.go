package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// sign produces the OK-ACCESS-SIGN header value: base64 of the
// HMAC-SHA256 of timestamp + method + requestPath(+query) + body.
func sign(secret, timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
