package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// UnknownAddress is stored in place of a hash when no client address could be resolved.
const UnknownAddress = "unknown"

// addressHeaders in priority order.
var addressHeaders = []string{
	"X-Real-IP",
	"X-Forwarded-For",
	"CF-Connecting-IP",
	"X-Vercel-Forwarded-For",
	"X-Client-IP",
}

// HashAddress is deterministic for a given salt, so hashes can be grouped and
// counted without keeping the address.
func HashAddress(rawAddress, salt string) string {
	sum := sha256.Sum256([]byte(rawAddress + ":" + salt))
	return hex.EncodeToString(sum[:])
}

// ResolveClientAddress returns the first usable proxy-forwarded address, or
// UnknownAddress. Chained headers yield their first (client-most) entry.
func ResolveClientAddress(headers http.Header) string {
	for _, name := range addressHeaders {
		value := headers.Get(name)
		if value == "" {
			continue
		}
		if ip := strings.TrimSpace(strings.Split(value, ",")[0]); ip != "" {
			return ip
		}
	}
	return UnknownAddress
}

// HashedClientAddress never hashes the sentinel.
func HashedClientAddress(headers http.Header, salt string) string {
	ip := ResolveClientAddress(headers)
	if ip == UnknownAddress {
		return UnknownAddress
	}
	return HashAddress(ip, salt)
}
