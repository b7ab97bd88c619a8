package types

// LifecycleManager is implemented by every long-lived component: metrics,
// ledger, event dispatcher, scheduler and the HTTP server. Start and Stop
// are idempotent only across distinct states.
type LifecycleManager interface {
	Start() error
	Stop() error
	IsRunning() bool
}
