// internal/handlers/utils.go
package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/jason-s-yu/lobbyd/internal/orchestrator"
	"github.com/sirupsen/logrus"
)

// errorBody is the JSON shape of every failure response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an orchestrator outcome to its HTTP status. Anything outside
// the closed set is a store failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, orchestrator.ErrNotFound), errors.Is(err, orchestrator.ErrInvalid):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrNotActive), errors.Is(err, orchestrator.ErrFull):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError renders err. Internal errors are logged and replaced with a generic message.
func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("lobby request failed")
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// clientIP is the address the rate limiter charges. It is the socket peer
// unless that peer is a trusted proxy, in which case the nearest untrusted hop
// of X-Forwarded-For (or X-Real-IP) is used instead.
func (s *APIServer) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !s.trusted(peer) {
		return host
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		if !s.trusted(hop) {
			return hop.String()
		}
	}
	if xrip, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xrip.String()
	}
	return host
}

func (s *APIServer) trusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range s.TrustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// extractBearerToken pulls the token out of an "Authorization: Bearer <token>" header.
func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// sameSecret compares in constant time.
func sameSecret(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
