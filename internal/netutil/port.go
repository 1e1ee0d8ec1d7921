// Package netutil binds the controller's HTTP listener.
package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
)

// ErrNoFreeAddr is returned when neither the preferred address nor any
// candidate could be bound.
var ErrNoFreeAddr = errors.New("no available controller bind addresses")

// Listen binds preferred. When it is taken and autoFallback is set, the
// candidates are tried in order. The returned listener stays open, so the
// address cannot be lost between probing and serving.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	var tried []string
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address in use: %s: %w", preferred, err)
		}
		tried = append(tried, preferred)
		slog.Warn("preferred bind address unavailable, trying candidates", "addr", preferred, "error", err)
	}

	for _, addr := range candidates {
		addr = strings.TrimSpace(addr)
		if addr == "" || addr == preferred {
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			slog.Info("bound fallback address", "addr", addr)
			return ln, nil
		}
		tried = append(tried, addr)
	}
	return nil, fmt.Errorf("%w (tried %s)", ErrNoFreeAddr, strings.Join(tried, ", "))
}
