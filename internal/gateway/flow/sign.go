// Package flow talks to the Flow payment gateway. Every request carries an
// HMAC-SHA256 signature computed with the merchant secret, which never
// leaves this process.
package flow

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// SignatureParam is the name of the signature parameter.
const SignatureParam = "s"

// Sign returns the lowercase hex HMAC-SHA256 of the parameters, concatenated
// as key+value in ascending key order. An existing signature parameter is
// ignored. Only the first value of a repeated key is used.
func Sign(params url.Values, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == SignatureParam {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params.Get(k))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether params carry a valid signature.
func Verify(params url.Values, secret string) bool {
	got, err := hex.DecodeString(params.Get(SignatureParam))
	if err != nil || len(got) == 0 {
		return false
	}
	want, _ := hex.DecodeString(Sign(params, secret))
	return hmac.Equal(got, want)
}

// signed returns a copy of params with the signature added.
func signed(params url.Values, secret string) url.Values {
	out := make(url.Values, len(params)+1)
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}
	out.Set(SignatureParam, Sign(params, secret))
	return out
}
