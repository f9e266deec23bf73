package product

import (
	"github.com/xraph/xchpay/subscription"
	"github.com/xraph/xchpay/types"
)

// Product is a purchasable catalog entry. Cost is charged once per
// billing period; Command is the activation run once it is paid for.
type Product struct {
	Key     string               `json:"key" yaml:"-"`
	Name    string               `json:"name" yaml:"name"`
	Cost    types.Money          `json:"cost" yaml:"-"`
	Command subscription.Command `json:"cmd" yaml:"cmd"`
}

// Activation builds the activation for this product from caller params.
func (p *Product) Activation(params subscription.Params) subscription.Activation {
	cmd := p.Command
	if cmd == "" {
		cmd = subscription.CommandNone
	}
	return subscription.Activation{Command: cmd, Params: params}
}
