package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoToken is returned when an operation flagged with Auth has no
// credential to attach.
var ErrNoToken = errors.New("client: no token available for authorized operation")

// TokenSource supplies the credential attached to authorized requests.
type TokenSource interface {
	// Token returns the current credential.
	Token(ctx context.Context) (string, error)
}

// StaticToken is an in-memory, fixed credential.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// TokenFunc adapts a function to a TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// tokenRegistry holds the process-wide named sources serialized clients
// can reference: a bundle carries only the source name, never the
// credential itself.
var tokenRegistry = struct {
	mu      sync.RWMutex
	sources map[string]TokenSource
}{sources: map[string]TokenSource{}}

// RegisterTokenSource registers src under name, replacing any previous
// registration.
func RegisterTokenSource(name string, src TokenSource) {
	tokenRegistry.mu.Lock()
	defer tokenRegistry.mu.Unlock()
	tokenRegistry.sources[name] = src
}

// UnregisterTokenSource removes the source registered under name.
func UnregisterTokenSource(name string) {
	tokenRegistry.mu.Lock()
	defer tokenRegistry.mu.Unlock()
	delete(tokenRegistry.sources, name)
}

// NamedToken returns a TokenSource that resolves name in the registry at
// call time, so a source registered after the client was built is still
// picked up.
func NamedToken(name string) TokenSource {
	return TokenFunc(func(ctx context.Context) (string, error) {
		tokenRegistry.mu.RLock()
		src, ok := tokenRegistry.sources[name]
		tokenRegistry.mu.RUnlock()
		if !ok {
			return "", fmt.Errorf("client: no token source registered under %q", name)
		}
		return src.Token(ctx)
	})
}
