// internal/model/errors.go
package model

import (
	"context"
	"errors"
)

// Record scoped failures. The orchestrator logs and counts these and
// moves on to the next record.
var (
	ErrMalformedEvent  = errors.New("malformed event")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrDivisionByZero  = errors.New("division by zero")
	ErrSinkRejected    = errors.New("sink rejected")
)

// Batch scoped failures. These always escape so that the transport
// redelivers the whole batch.
var (
	ErrBatchDelivery = errors.New("batch delivery failure")
	ErrFatalEnvelope = errors.New("fatal envelope")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrMalformedEvent, "MalformedEvent"},
	{ErrInvalidInterval, "InvalidInterval"},
	{ErrDivisionByZero, "DivisionByZero"},
	{ErrSinkRejected, "SinkRejected"},
	{ErrBatchDelivery, "BatchDeliveryFailure"},
	{ErrFatalEnvelope, "FatalEnvelope"},
}

// KindOf names the taxonomy entry err belongs to, or "Unknown".
// Timeouts and cancellations of a sink call count as "Timeout".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	if isTimeout(err) {
		return "Timeout"
	}
	return "Unknown"
}

// BatchScoped reports whether err must fail the whole invocation.
func BatchScoped(err error) bool {
	return errors.Is(err, ErrBatchDelivery) || errors.Is(err, ErrFatalEnvelope)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
