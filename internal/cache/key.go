package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"rental_dashboard/internal/querykeys"
)

const AnonymousPartition = "anon"

// BuildKey derives the server cache key from the request method, its
// normalized path and query, and the requesting principal. Distinct
// principals never share a key.
func BuildKey(req *http.Request, principalID string) string {
	if req == nil || req.URL == nil {
		return ""
	}
	return ComposeKey(req.Method, RequestPath(req), principalID)
}

func ComposeKey(method string, path string, principalID string) string {
	method = strings.ToUpper(method)
	partition := Partition(principalID)

	var builder strings.Builder
	builder.Grow(len(method) + len(path) + len(partition) + 10)
	builder.WriteString("m=")
	builder.WriteString(method)
	builder.WriteString("|u=")
	builder.WriteString(path)
	builder.WriteString("|p=")
	builder.WriteString(partition)
	return builder.String()
}

// RequestPath is the path-plus-query form used both inside keys and as the
// Entry.Path matched by invalidation prefixes.
func RequestPath(req *http.Request) string {
	if req == nil || req.URL == nil {
		return ""
	}
	return querykeys.Normalize(req.URL.Path, req.URL.RawQuery)
}

func Partition(principalID string) string {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return AnonymousPartition
	}
	hash := sha256.Sum256([]byte(principalID))
	return "priv:" + hex.EncodeToString(hash[:16])
}
