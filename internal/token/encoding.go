package token

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed is returned by Decode for values that were not produced by
// Encode.
var ErrMalformed = errors.New("token: malformed stored value")

// rotate shifts ASCII letters by n places within their case, leaving every
// other byte untouched.
func rotate(s string, n int) string {
	b := []byte(s)
	for i, c := range b {
		var base byte
		switch {
		case c >= 'A' && c <= 'Z':
			base = 'A'
		case c >= 'a' && c <= 'z':
			base = 'a'
		default:
			continue
		}
		b[i] = base + byte(((int(c-base)+n)%26+26)%26)
	}
	return string(b)
}

// Encode produces the obfuscated storage form of a token and its expiry:
// rot7(token) is base64 encoded, joined by "." with base64 of the expiry in
// unix milliseconds, and the whole string is rot3'd.
//
// This is obfuscation, not encryption. Anyone with access to the storage can
// recover the token.
func Encode(token string, expiry time.Time) string {
	tok := base64.StdEncoding.EncodeToString([]byte(rotate(token, 7)))
	exp := base64.StdEncoding.EncodeToString([]byte(strconv.FormatInt(expiry.UnixMilli(), 10)))
	return rotate(tok+"."+exp, 3)
}

// Decode reverses Encode.
func Decode(raw string) (string, time.Time, error) {
	tok, exp, ok := strings.Cut(rotate(raw, -3), ".")
	if !ok || tok == "" || exp == "" {
		return "", time.Time{}, ErrMalformed
	}
	tokBytes, err := base64.StdEncoding.DecodeString(tok)
	if err != nil {
		return "", time.Time{}, ErrMalformed
	}
	expBytes, err := base64.StdEncoding.DecodeString(exp)
	if err != nil {
		return "", time.Time{}, ErrMalformed
	}
	ms, err := strconv.ParseInt(string(expBytes), 10, 64)
	if err != nil {
		return "", time.Time{}, ErrMalformed
	}
	return rotate(string(tokBytes), -7), time.UnixMilli(ms), nil
}
