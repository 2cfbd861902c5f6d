package schedule

import (
	"context"
	"time"
)

// Reminder is a pending one-shot message.
type Reminder struct {
	ID   string    `json:"id"`
	To   string    `json:"to"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Notifier delivers a reminder when it fires.
type Notifier interface {
	Notify(ctx context.Context, to, text string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, to, text string) error

func (f NotifierFunc) Notify(ctx context.Context, to, text string) error {
	return f(ctx, to, text)
}

// once fires a single time at at.
type once struct {
	at time.Time
}

// Next returns at until it has passed, then the zero time, which cron treats as never.
func (o once) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}
