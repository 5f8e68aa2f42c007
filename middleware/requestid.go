package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"sync/atomic"
)

const RequestIDHeader = "X-Request-ID"

// RandRead is the entropy source for request IDs; tests replace it.
var RandRead = rand.Read

var fallbackCounter atomic.Uint64

// RequestID ensures each request has a stable correlation ID.
// If the request already has X-Request-ID, it is preserved.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = newRequestID()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func newRequestID() string {
	var b [16]byte
	if _, err := RandRead(b[:]); err != nil {
		return "fallback-id-" + strconv.FormatUint(fallbackCounter.Add(1), 10)
	}
	return hex.EncodeToString(b[:])
}
