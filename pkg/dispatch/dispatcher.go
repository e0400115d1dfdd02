// Package dispatch delivers a rendered submission to its destinations with
// tiered attachment fallback.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/relayhub/observability"
	"github.com/kart-io/relayhub/pkg/attachment"
	relayerrors "github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/platform"
	"github.com/kart-io/relayhub/pkg/receipt"
	"github.com/kart-io/relayhub/pkg/submission"
	"github.com/kart-io/relayhub/pkg/target"
)

// DefaultPacing is the pause between consecutive destinations
const DefaultPacing = 500 * time.Millisecond

// Dispatcher sends one submission to each destination in turn. It never
// runs destinations concurrently and starts no goroutines.
type Dispatcher struct {
	transport platform.Transport
	notices   Notices
	chain     []Strategy
	pacing    time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    logger.Logger
	telemetry *observability.TelemetryProvider
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithPacing sets the delay between destinations
func WithPacing(d time.Duration) Option {
	return func(disp *Dispatcher) {
		disp.pacing = d
	}
}

// WithChain replaces the attachment fallback chain
func WithChain(chain ...Strategy) Option {
	return func(disp *Dispatcher) {
		disp.chain = chain
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.logger = l
		}
	}
}

// WithTelemetry enables spans and metrics
func WithTelemetry(tp *observability.TelemetryProvider) Option {
	return func(disp *Dispatcher) {
		disp.telemetry = tp
	}
}

// WithSleep replaces the pacing wait
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(disp *Dispatcher) {
		disp.sleep = sleep
	}
}

// NewDispatcher creates a dispatcher sending through transport
func NewDispatcher(transport platform.Transport, notices Notices, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		notices:   notices,
		chain:     DefaultChain(),
		pacing:    DefaultPacing,
		sleep:     sleepContext,
		logger:    logger.Discard,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers summary and the record's attachment to every
// destination and aggregates the results. A destination counts as
// delivered when its summary text was accepted.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *submission.Record, summary string, destinations []target.Destination) *receipt.Receipt {
	results := make([]receipt.DeliveryResult, 0, len(destinations))

	for i, dest := range destinations {
		if i > 0 && d.pacing > 0 {
			if err := d.sleep(ctx, d.pacing); err != nil {
				d.logger.Warn("Pacing interrupted", "submission_id", rec.ID, "error", err)
			}
		}
		results = append(results, d.deliver(ctx, rec, summary, dest))
	}

	return receipt.New(rec.ID, results)
}

func (d *Dispatcher) deliver(ctx context.Context, rec *submission.Record, summary string, dest target.Destination) (result receipt.DeliveryResult) {
	start := time.Now()
	ctx, span := d.telemetry.TraceDelivery(ctx, rec.ID, dest.ID, dest.Origin)
	defer span.End()

	result = receipt.DeliveryResult{
		DestinationID:     dest.ID,
		AttachmentOutcome: receipt.NotAttempted,
	}
	defer func() {
		result.Duration = time.Since(start)
		d.telemetry.RecordDelivery(ctx, result.Success, string(result.AttachmentOutcome), result.Duration)
	}()

	if err := d.transport.SendText(ctx, dest.ID, summary); err != nil {
		sendErr := relayerrors.Wrap(err, relayerrors.ErrDestinationSendFailed, "summary delivery failed")
		result.ErrorDetail = err.Error()
		d.telemetry.SetSpanError(span, sendErr)
		d.logger.Error("Summary delivery failed", "submission_id", rec.ID, "destination", dest.String(), "error", sendErr)
		return result
	}
	result.Success = true
	d.logger.Info("Summary delivered", "submission_id", rec.ID, "destination", dest.String())

	a := rec.Attachment
	switch {
	case a.IsDeliverable():
		d.deliverAttachment(ctx, rec, dest, &result)
	case a.State == attachment.Denied:
		d.notify(ctx, rec, dest, &result, "denial", d.notices.DeniedNotice(rec))
	case a.State == attachment.Decoded && a.Deliverability == attachment.TooLarge:
		d.notify(ctx, rec, dest, &result, "out-of-bounds", d.notices.OutOfBoundsNotice(rec))
	}

	d.telemetry.SetSpanSuccess(span)
	return result
}

// deliverAttachment walks the fallback chain. When every strategy fails the
// undeliverable notice is sent and its own failure is only recorded.
func (d *Dispatcher) deliverAttachment(ctx context.Context, rec *submission.Record, dest target.Destination, result *receipt.DeliveryResult) {
	var failures []string
	var lastErr error

	for _, s := range d.chain {
		err := s.Send(ctx, d.transport, dest.ID, rec, d.notices)
		if err == nil {
			result.AttachmentOutcome = s.Outcome()
			d.logger.Info("Attachment delivered", "submission_id", rec.ID, "destination", dest.String(),
				"strategy", s.Name(), "size_bytes", rec.Attachment.SizeBytes)
			return
		}
		lastErr = err
		failures = append(failures, fmt.Sprintf("%s: %s", s.Name(), err.Error()))
		d.logger.Warn("Attachment strategy failed", "submission_id", rec.ID, "destination", dest.String(),
			"strategy", s.Name(), "status", platform.StatusCodeOf(err), "error", err)
	}

	if lastErr == nil {
		lastErr = errors.New("no delivery strategy configured")
		failures = append(failures, lastErr.Error())
	}

	result.AttachmentOutcome = receipt.Failed
	result.ErrorDetail = strings.Join(failures, "; ")
	d.logger.Error("Attachment undeliverable", "submission_id", rec.ID, "destination", dest.String(),
		"error", relayerrors.New(relayerrors.ErrAttachmentDeliveryFailed, "attachment delivery failed").WithDetails(result.ErrorDetail))

	d.notify(ctx, rec, dest, result, "undeliverable", d.notices.UndeliverableNotice(rec, lastErr))
}

// notify sends a supplementary notice. Failure never changes the result's
// success; it is kept as a warning.
func (d *Dispatcher) notify(ctx context.Context, rec *submission.Record, dest target.Destination, result *receipt.DeliveryResult, kind, text string) {
	if err := d.transport.SendText(ctx, dest.ID, text); err != nil {
		result.Warn(fmt.Sprintf("%s notice failed: %s", kind, err.Error()))
		d.logger.Warn("Notice delivery failed", "submission_id", rec.ID, "destination", dest.String(),
			"notice", kind, "error", err)
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
