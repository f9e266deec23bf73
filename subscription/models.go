package subscription

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/types"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusActive      Status = "active"
	StatusGracePeriod Status = "grace_period"
	StatusTerminated  Status = "terminated"
)

var transitions = map[Status][]Status{
	StatusPending:     {StatusActive, StatusTerminated},
	StatusActive:      {StatusGracePeriod, StatusTerminated},
	StatusGracePeriod: {StatusActive, StatusTerminated},
	StatusTerminated:  nil,
}

// CanTransition reports whether a subscription in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

type Subscription struct {
	types.Entity
	ID         id.SubscriptionID `json:"id"`
	UserID     string            `json:"user_id"`
	ProductKey string            `json:"product_key"`
	StartDate  time.Time         `json:"start_date"`
	EndDate    time.Time         `json:"end_date"`
	Status     Status            `json:"status"`
	Activation Activation        `json:"activation"`
}

// ──────────────────────────────────────────────────
// Activation
// ──────────────────────────────────────────────────

// Command names the provisioning action run once a subscription is paid for.
type Command string

const (
	CommandNone             Command = "none"
	CommandProvisionNode    Command = "provision_node"
	CommandProvisionStorage Command = "provision_storage"
	CommandAllocateDomain   Command = "allocate_domain"
)

// IsValid reports whether c is a known command.
func (c Command) IsValid() bool {
	switch c {
	case CommandNone, CommandProvisionNode, CommandProvisionStorage, CommandAllocateDomain:
		return true
	}
	return false
}

// Params carries the caller-supplied parameters of an activation. Which
// fields are required depends on the command.
type Params struct {
	Region     string `json:"region,omitempty" bson:"region,omitempty"`
	Size       string `json:"size,omitempty" bson:"size,omitempty"`
	CapacityGB int    `json:"capacity_gb,omitempty" bson:"capacity_gb,omitempty"`
	Domain     string `json:"domain,omitempty" bson:"domain,omitempty"`
}

// Activation is the command and parameters dispatched to the provisioner
// when the subscription's invoice is settled.
type Activation struct {
	Command Command `json:"cmd" bson:"cmd"`
	Params  Params  `json:"params" bson:"params"`
}

// ErrInvalidParams is wrapped by every Activation.Validate failure.
var ErrInvalidParams = errors.New("invalid activation params")

// Validate checks that the params carry what the command needs.
func (a Activation) Validate() error {
	switch a.Command {
	case CommandNone:
		return nil
	case CommandProvisionNode:
		if a.Params.Region == "" {
			return fmt.Errorf("%w: %s requires region", ErrInvalidParams, a.Command)
		}
		if a.Params.Size == "" {
			return fmt.Errorf("%w: %s requires size", ErrInvalidParams, a.Command)
		}
	case CommandProvisionStorage:
		if a.Params.Region == "" {
			return fmt.Errorf("%w: %s requires region", ErrInvalidParams, a.Command)
		}
		if a.Params.CapacityGB <= 0 {
			return fmt.Errorf("%w: %s requires a positive capacity_gb", ErrInvalidParams, a.Command)
		}
	case CommandAllocateDomain:
		d := a.Params.Domain
		if d == "" || strings.ContainsAny(d, " /\t") || !strings.Contains(strings.Trim(d, "."), ".") {
			return fmt.Errorf("%w: %s requires a fully qualified domain, got %q", ErrInvalidParams, a.Command, d)
		}
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalidParams, a.Command)
	}
	return nil
}
