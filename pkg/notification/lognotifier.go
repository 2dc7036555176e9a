package notification

import "log/slog"

// LogNotifier writes deliveries to the log. The simulator uses it for
// channels with no real transport configured, so an operator can read the
// passcode straight from the server output.
type LogNotifier struct {
	Channel Channel
}

func (l *LogNotifier) Send(notification Data) error {
	slog.Info("Simulated delivery",
		"channel", l.Channel,
		"to", notification.To,
		"body", notification.Body)
	return nil
}
