// Package provision dispatches subscription activations to the services
// that fulfil them.
package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/subscription"
)

// ErrNoHandler is returned by Router for commands without a handler.
var ErrNoHandler = errors.New("provision: no handler for command")

// Provisioner fulfils a paid subscription's activation.
type Provisioner interface {
	Provision(ctx context.Context, act subscription.Activation, subID id.SubscriptionID) error
}

// ProvisionerFunc adapts a function to Provisioner.
type ProvisionerFunc func(ctx context.Context, act subscription.Activation, subID id.SubscriptionID) error

func (f ProvisionerFunc) Provision(ctx context.Context, act subscription.Activation, subID id.SubscriptionID) error {
	return f(ctx, act, subID)
}

// Noop accepts every activation without doing anything.
var Noop Provisioner = ProvisionerFunc(func(context.Context, subscription.Activation, id.SubscriptionID) error {
	return nil
})

// Router dispatches activations to a handler registered per command.
// CommandNone is always accepted.
type Router struct {
	mu       sync.RWMutex
	handlers map[subscription.Command]Provisioner
}

var _ Provisioner = (*Router)(nil)

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[subscription.Command]Provisioner)}
}

// Handle registers p for cmd, replacing any previous handler.
func (r *Router) Handle(cmd subscription.Command, p Provisioner) *Router {
	r.mu.Lock()
	r.handlers[cmd] = p
	r.mu.Unlock()
	return r
}

// HandleFunc registers fn for cmd.
func (r *Router) HandleFunc(cmd subscription.Command, fn ProvisionerFunc) *Router {
	return r.Handle(cmd, fn)
}

func (r *Router) Provision(ctx context.Context, act subscription.Activation, subID id.SubscriptionID) error {
	if act.Command == subscription.CommandNone {
		return nil
	}

	r.mu.RLock()
	h, ok := r.handlers[act.Command]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w %q", ErrNoHandler, act.Command)
	}
	if err := h.Provision(ctx, act, subID); err != nil {
		return fmt.Errorf("provision %s for %s: %w", act.Command, subID, err)
	}
	return nil
}
