// Package notify delivers SMS messages through an ordered chain of providers.
package notify

import (
	"context"
	"log/slog"
)

type Provider interface {
	Name() string
	// Configured reports whether the provider has the credentials it needs.
	Configured() bool
	Send(ctx context.Context, to, message string) error
}

// Dispatcher tries each provider in turn and stops at the first success.
// With no usable provider it only logs the message.
type Dispatcher struct {
	providers []Provider
	logger    *slog.Logger
}

func NewDispatcher(logger *slog.Logger, providers ...Provider) *Dispatcher {
	return &Dispatcher{providers: providers, logger: logger}
}

// SendSMS never fails loudly. It returns true only when a provider accepted
// the message.
func (d *Dispatcher) SendSMS(ctx context.Context, to, message string) bool {
	if to == "" {
		return false
	}

	for _, p := range d.providers {
		if !p.Configured() {
			continue
		}
		if err := d.send(ctx, p, to, message); err != nil {
			d.logger.Warn("sms provider failed", "provider", p.Name(), "error", err)
			continue
		}
		d.logger.Info("sms sent", "provider", p.Name(), "to", maskPhone(to))
		return true
	}

	d.logger.Info("sms skipped, no provider available", "to", maskPhone(to), "message", message)
	return false
}

func (d *Dispatcher) send(ctx context.Context, p Provider, to, message string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{provider: p.Name(), value: r}
		}
	}()
	return p.Send(ctx, to, message)
}

type panicError struct {
	provider string
	value    any
}

func (e *panicError) Error() string {
	return "provider " + e.provider + " panicked"
}

func maskPhone(p string) string {
	if len(p) <= 4 {
		return p
	}
	masked := make([]byte, len(p))
	for i := range masked {
		if i < len(p)-4 {
			masked[i] = '*'
		} else {
			masked[i] = p[i]
		}
	}
	return string(masked)
}
