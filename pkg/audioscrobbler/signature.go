package audioscrobbler

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Sign generates the api_sig for a web-service request.
//
// The signature is calculated by:
// 1. Sorting parameter keys alphabetically
// 2. Concatenating key+value pairs (e.g., "keyAvalueAkeyBvalueB")
// 3. Appending the shared secret
// 4. Taking the MD5 hash of the result
func Sign(secret string, params map[string]string) string {
	var b strings.Builder
	for _, k := range sortedKeys(params) {
		b.WriteString(k)
		b.WriteString(params[k])
	}
	b.WriteString(secret)
	return md5Hex(b.String())
}

// AuthToken is the handshake token: md5(passwordHash + timestamp).
func AuthToken(passwordHash string, timestamp int64) string {
	return md5Hex(passwordHash + strconv.FormatInt(timestamp, 10))
}

// HashPassword returns the hex MD5 of a plaintext password, the form the
// protocol expects credentials to be stored in.
func HashPassword(password string) string {
	return md5Hex(password)
}

// signedQuery encodes params sorted by key and appends api_sig last.
func signedQuery(secret string, params map[string]string) string {
	var b strings.Builder
	for _, k := range sortedKeys(params) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(escape(params[k]))
		b.WriteByte('&')
	}
	b.WriteString("api_sig=")
	b.WriteString(Sign(secret, params))
	return b.String()
}

func sortedKeys(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
