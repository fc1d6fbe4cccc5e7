package mail

import "fmt"

// Options carries what NewSender needs to build any driver.
type Options struct {
	Driver               string
	From                 string
	PostmarkServerToken  string
	PostmarkAccountToken string
	RabbitURL            string
	Queue                string
	DevDir               string
}

// NewSender builds the sender selected by opts.Driver.
func NewSender(opts Options) (Sender, error) {
	switch opts.Driver {
	case DriverPostmark:
		return NewPostmarkSender(opts.PostmarkServerToken, opts.PostmarkAccountToken, opts.From)
	case DriverQueue:
		return NewQueueSender(opts.RabbitURL, opts.Queue), nil
	case DriverDev:
		return NewDevSender(opts.DevDir), nil
	case DriverLog, "":
		return LogSender{}, nil
	}
	return nil, fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, opts.Driver)
}
