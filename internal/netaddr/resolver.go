// Package netaddr resolves the network address a new identity is bound to.
//
// Resolution is an external concern that may fail or hang. Every resolver
// handed to the identity service is wrapped with Bounded so that a failure
// degrades to Loopback instead of surfacing to the caller.
package netaddr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Loopback is the sentinel address used whenever resolution fails.
const Loopback = "127.0.0.1"

// ErrNoAddress indicates a resolver had nothing to report.
var ErrNoAddress = errors.New("no address available")

// Resolver reports the public address of the current caller.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context) (string, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context) (string, error) { return f(ctx) }

// Static always reports the same address.
type Static string

// Resolve returns the static address.
func (s Static) Resolve(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoAddress
	}
	return string(s), nil
}

type callerKey struct{}

// WithCaller records the address of the request being served on ctx.
func WithCaller(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// CallerFrom returns the address recorded by WithCaller.
func CallerFrom(ctx context.Context) (string, bool) {
	addr, ok := ctx.Value(callerKey{}).(string)
	return addr, ok && addr != ""
}

// Caller prefers the address recorded on the context and consults next
// otherwise. A nil next yields ErrNoAddress.
func Caller(next Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context) (string, error) {
		if addr, ok := CallerFrom(ctx); ok {
			return addr, nil
		}
		if next == nil {
			return "", ErrNoAddress
		}
		return next.Resolve(ctx)
	})
}

// PublicIPService asks an ipify-compatible endpoint for the public address
// of this process.
type PublicIPService struct {
	url     string
	timeout time.Duration
}

// NewPublicIPService builds a resolver for the given endpoint. The endpoint
// must answer with {"ip": "..."}.
func NewPublicIPService(url string, timeout time.Duration) *PublicIPService {
	return &PublicIPService{url: url, timeout: timeout}
}

type ipifyResponse struct {
	IP string `json:"ip"`
}

// Resolve performs the lookup.
func (s *PublicIPService) Resolve(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	agent := fiber.Get(s.url)
	if s.timeout > 0 {
		agent.Timeout(s.timeout)
	}
	var out ipifyResponse
	status, _, errs := agent.Struct(&out)
	if len(errs) > 0 {
		return "", fmt.Errorf("public ip lookup: %w", errors.Join(errs...))
	}
	if status != fiber.StatusOK {
		return "", fmt.Errorf("public ip lookup: unexpected status %d", status)
	}
	return normalize(out.IP)
}

// Bounded wraps next so that Resolve never fails: errors, invalid answers
// and lookups slower than timeout all yield Loopback.
func Bounded(next Resolver, timeout time.Duration) Resolver {
	return ResolverFunc(func(ctx context.Context) (string, error) {
		if next == nil {
			return Loopback, nil
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		type result struct {
			addr string
			err  error
		}
		ch := make(chan result, 1)
		go func() {
			addr, err := next.Resolve(ctx)
			ch <- result{addr: addr, err: err}
		}()

		select {
		case res := <-ch:
			if res.err != nil {
				return Loopback, nil
			}
			addr, err := normalize(res.addr)
			if err != nil {
				return Loopback, nil
			}
			return addr, nil
		case <-ctx.Done():
			return Loopback, nil
		}
	})
}

func normalize(raw string) (string, error) {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return "", fmt.Errorf("invalid address %q", raw)
	}
	return ip.String(), nil
}
