package notification

// MockNotifier records deliveries for tests.
type MockNotifier struct {
	SentNotifications []Data
}

func (m *MockNotifier) Send(notification Data) error {
	m.SentNotifications = append(m.SentNotifications, notification)
	return nil
}

// LastPasscode returns the passcode carried by the most recent delivery.
func (m *MockNotifier) LastPasscode() string {
	if len(m.SentNotifications) == 0 {
		return ""
	}
	return m.SentNotifications[len(m.SentNotifications)-1].Data["passcode"]
}
