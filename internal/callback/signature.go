// Package callback implements the signed payment status callback sent from
// the payment service to the order service.
//
// The signature covers "{orderCode}|{status}|{unixSeconds}" and is the hex
// HMAC-SHA256 of that string under the secret both services share.
package callback

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

const (
	Path            = "/api/orders/payment/callback"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// Body is the JSON document posted to Path.
type Body struct {
	OrderCode   string `json:"orderCode"`
	Status      string `json:"status"`
	ProviderRef string `json:"providerRef,omitempty"`
}

func Payload(orderCode, status string, unix int64) string {
	return orderCode + "|" + status + "|" + strconv.FormatInt(unix, 10)
}

func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
