package notification

// Channel is a delivery channel for one-time passcodes.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelVoice    Channel = "voice"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
)

// Data is one passcode delivery.
type Data struct {
	To      string            // phone number or email address
	Subject string            // email subject, ignored by other channels
	Body    string            // rendered message
	Data    map[string]string // extra metadata (passcode, device id)
}

// Notifier delivers a passcode over one channel.
type Notifier interface {
	Send(notification Data) error
}
