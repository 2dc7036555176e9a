package notification

import (
	"fmt"
	"log/slog"
)

// Manager routes passcode deliveries to the notifier registered for each
// channel.
type Manager struct {
	notifiers map[Channel]Notifier
}

// NewManager creates an empty notification manager.
func NewManager() *Manager {
	return &Manager{
		notifiers: make(map[Channel]Notifier),
	}
}

// Register installs a notifier for a channel, replacing any previous one.
func (m *Manager) Register(channel Channel, notifier Notifier) {
	m.notifiers[channel] = notifier
}

// Send delivers a notification over the given channel.
func (m *Manager) Send(channel Channel, notification Data) error {
	notifier, ok := m.notifiers[channel]
	if !ok {
		return fmt.Errorf("no notifier registered for channel: %s", channel)
	}

	if err := notifier.Send(notification); err != nil {
		slog.Error("Failed to send notification", "channel", channel, "to", notification.To, "error", err)
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}
