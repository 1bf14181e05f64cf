package sqldb

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultMessageTable    = "message"
	DefaultQueueTable      = "outbound_message_queue"
	DefaultQueueErrorTable = "outbound_message_queue_error"
	DefaultAccountTable    = "account"
	DefaultReceiverTable   = "account_receiver"
	DefaultTimeout         = 10 * time.Second
)

// options holds SQL store configuration.
type options struct {
	messageTable    string
	queueTable      string
	queueErrorTable string
	accountTable    string
	receiverTable   string
	timeout         time.Duration
	logger          *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		messageTable:    DefaultMessageTable,
		queueTable:      DefaultQueueTable,
		queueErrorTable: DefaultQueueErrorTable,
		accountTable:    DefaultAccountTable,
		receiverTable:   DefaultReceiverTable,
		timeout:         DefaultTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a SQL store.
type Option func(*options)

// WithMessageTable sets the transmission record table name.
func WithMessageTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.messageTable = name
		}
	}
}

// WithQueueTable sets the outbound queue table name.
func WithQueueTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.queueTable = name
		}
	}
}

// WithQueueErrorTable sets the queue error table name.
func WithQueueErrorTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.queueErrorTable = name
		}
	}
}

// WithAccountTable sets the account table name.
func WithAccountTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.accountTable = name
		}
	}
}

// WithReceiverTable sets the account receiver registration table name.
func WithReceiverTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.receiverTable = name
		}
	}
}

// WithTimeout sets the operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
