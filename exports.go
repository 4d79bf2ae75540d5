package billing

import (
	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/types"
)

// Re-export common types for convenience so users don't have to import
// every record package.

// Entity is re-exported from types package.
type Entity = types.Entity

// State is re-exported from customer package.
type State = customer.State

// Re-export Entity constructor
var NewEntity = types.NewEntity

// Re-export payment types
const (
	Prepaid  = customer.Prepaid
	Postpaid = customer.Postpaid
)
