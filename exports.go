package xchpay

import "github.com/xraph/xchpay/types"

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// MojoPerXCH is the number of mojos in one XCH.
const MojoPerXCH = types.MojoPerXCH

// Re-export Money constructors
var (
	Mojos    = types.Mojos
	XCH      = types.XCH
	ParseXCH = types.ParseXCH
	Zero     = types.Zero
	Sum      = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
