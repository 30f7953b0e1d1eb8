package notifications

// Notifier delivers a best-effort push notification to a device token.
// Implementations must never propagate failures to the caller; a lost
// notification is acceptable, a blocked settlement is not.
type Notifier interface {
	Notify(token, title, body string, data map[string]string)
}
