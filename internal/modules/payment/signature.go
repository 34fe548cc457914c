package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the hex HMAC-SHA256 of "gatewayOrderID|paymentID" keyed by secret.
func Sign(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func ValidSignature(secret, gatewayOrderID, paymentID, signature string) bool {
	want := Sign(secret, gatewayOrderID, paymentID)
	return hmac.Equal([]byte(want), []byte(signature))
}
