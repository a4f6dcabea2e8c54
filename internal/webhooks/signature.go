package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix seconds>,v1=<hex hmac>"; the MAC covers
// "<t>.<body>".
const SignatureHeader = "X-Signature"

func mac(secret string, ts int64, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(strconv.FormatInt(ts, 10)))
	m.Write([]byte{'.'})
	m.Write(body)
	return m.Sum(nil)
}

// SignHMAC builds the signature header value for body at time ts.
func SignHMAC(secret string, body []byte, ts time.Time) string {
	t := ts.Unix()
	return "t=" + strconv.FormatInt(t, 10) + ",v1=" + hex.EncodeToString(mac(secret, t, body))
}

// VerifyHMAC checks a signature header against body. A non-zero tolerance
// rejects signatures whose timestamp is further than that from now.
func VerifyHMAC(secret string, body []byte, header string, tolerance time.Duration, now time.Time) bool {
	var (
		ts  int64
		sig []byte
		err error
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return false
		}
		switch k {
		case "t":
			if ts, err = strconv.ParseInt(v, 10, 64); err != nil {
				return false
			}
		case "v1":
			if sig, err = hex.DecodeString(v); err != nil {
				return false
			}
		}
	}
	if ts == 0 || sig == nil {
		return false
	}
	if tolerance > 0 {
		d := now.Sub(time.Unix(ts, 0))
		if d < -tolerance || d > tolerance {
			return false
		}
	}
	return hmac.Equal(mac(secret, ts, body), sig)
}
