package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

const cacheKeyPrefix = "ember:completion:"

// Cacheable reports whether a request's result may be served from cache.
// Only buffered, greedy (temperature 0) single-sample requests qualify.
func Cacheable(req *CompletionRequest) bool {
	if req == nil || req.Stream || req.Temperature != 0 {
		return false
	}
	return req.BestOf == nil || *req.BestOf == 1
}

// CacheKey derives a stable key from the canonical request.
func CacheKey(req *CompletionRequest) string {
	canonical := *req
	canonical.Stream = false
	canonical.User = ""

	data, _ := json.Marshal(canonical)
	hash := sha256.Sum256(data)
	return cacheKeyPrefix + hex.EncodeToString(hash[:])
}
