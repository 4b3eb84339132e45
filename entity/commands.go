package entity

// EnsureCredentials asks for the missing credentials of one purchase to be
// issued. Handling it more than once is harmless.
type EnsureCredentials struct {
	Header     EventHeader `json:"header"`
	PurchaseID string      `json:"purchase_id"`
}
