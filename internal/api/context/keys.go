package context

// Key is the private type for request-context values set by middleware.
type Key string

const (
	Claims Key = "claims"
	Tenant Key = "tenant"
	Params Key = "params"
)
