package interfaces

// Notifier shows transient user-facing notifications. Implementations must be
// safe to call from background goroutines.
type Notifier interface {
	Success(title, description string)
	Error(title, description string)
}
