package lesson

import (
	"context"
	"time"
)

// Pacer spaces out the delivery of a message batch. Wait is called before message i of a batch.
type Pacer interface {
	Wait(ctx context.Context, i int) error
}

// NoPacing delivers every message immediately.
type NoPacing struct{}

func (NoPacing) Wait(ctx context.Context, _ int) error {
	return ctx.Err()
}

// FixedPacing waits Delay before every message but the first.
type FixedPacing struct {
	Delay time.Duration
}

func (p FixedPacing) Wait(ctx context.Context, i int) error {
	if i == 0 || p.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PacerFor returns FixedPacing for a positive delay and NoPacing otherwise.
func PacerFor(delay time.Duration) Pacer {
	if delay <= 0 {
		return NoPacing{}
	}
	return FixedPacing{Delay: delay}
}
