// Package envelope carries the advisory biophysical recommendation layer.
//
// Everything in this package is read-only advice. A ContextView can
// recommend a downgrade; nothing here can force one. The reversal kernel
// closes the loop the other way: a downgrade whose envelope does not
// request it is denied.
package envelope

// ContextView is the advisory triple consumed by the reversal kernel.
type ContextView struct {
	RequiresDowngrade          bool `json:"requires_downgrade"`
	RequestCapabilityDowngrade bool `json:"request_capability_downgrade"`
	BalanceMaintained          bool `json:"balance_maintained"`
}
