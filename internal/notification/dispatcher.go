package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ==============================================
// DISPATCHER
// ==============================================

// ErrUnknownChannel is returned when no channel is registered under a name.
var ErrUnknownChannel = errors.New("unknown notification channel")

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Message is a verification code addressed to one recipient.
type Message struct {
	Recipient string
	Code      string
	// Attribute names what is being verified, e.g. "email" or "phone".
	Attribute string
	ExpiresIn time.Duration
}

// Channel delivers a message over one transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher routes messages to registered channels. It never retries.
type Dispatcher struct {
	channels map[string]Channel
	logger   *zap.Logger
}

func NewDispatcher(logger *zap.Logger, channels ...Channel) *Dispatcher {
	d := &Dispatcher{
		channels: make(map[string]Channel, len(channels)),
		logger:   logger,
	}
	for _, ch := range channels {
		d.channels[ch.Name()] = ch
	}
	return d
}

// Send delivers msg to userID through the named channel.
func (d *Dispatcher) Send(ctx context.Context, userID int64, channel string, msg Message) error {
	ch, ok := d.channels[channel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}

	if err := ch.Send(ctx, msg); err != nil {
		d.logger.Warn("notification dispatch failed",
			zap.Int64("user_id", userID),
			zap.String("channel", channel),
			zap.Error(err),
		)
		return fmt.Errorf("%s channel: %w", channel, err)
	}

	d.logger.Debug("notification dispatched",
		zap.Int64("user_id", userID),
		zap.String("channel", channel),
	)
	return nil
}
