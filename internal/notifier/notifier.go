package notifier

// Client delivers operator-facing failure notifications. Best effort:
// a notification that cannot be sent is logged and dropped.
type Client interface {
	NotifyFailure(username string, kind string, message string)
}

// Noop is used when no notification channel is configured.
type Noop struct{}

var _ Client = Noop{}

func (Noop) NotifyFailure(string, string, string) {}
