package access

import (
	"context"
	"fmt"
)

// Kind is the principal kind of a caller.
type Kind string

const (
	Anonymous Kind = ""
	Patient   Kind = "patient"
	Operator  Kind = "operator"
	Doctor    Kind = "doctor"
)

// Principal is the per-request view of who is calling and what they may touch.
// It is built from the server-side session on every request.
type Principal struct {
	Kind     Kind   `json:"kind"`
	ID       int64  `json:"id"`
	Username string `json:"username"`
	// QRID is the owned token for patients and the scoped token for doctors.
	QRID string `json:"qr_id,omitempty"`
	// Capability is the signed doctor capability for QRID.
	Capability string `json:"capability,omitempty"`
}

func (p *Principal) Authenticated() bool {
	return p != nil && p.Kind != Anonymous
}

// Tag identifies the principal in provenance columns, e.g. "operator:bob".
func (p *Principal) Tag() string {
	if !p.Authenticated() {
		return "anonymous"
	}
	return fmt.Sprintf("%s:%s", p.Kind, p.Username)
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the caller, or an anonymous principal.
func FromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(ctxKey{}).(*Principal); ok && p != nil {
		return p
	}
	return &Principal{}
}
