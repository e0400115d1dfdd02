// Package relay runs the submission pipeline end to end: decode, normalize,
// render, resolve destinations and dispatch.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/relayhub/observability"
	"github.com/kart-io/relayhub/pkg/attachment"
	"github.com/kart-io/relayhub/pkg/config"
	"github.com/kart-io/relayhub/pkg/dispatch"
	"github.com/kart-io/relayhub/pkg/enrichment"
	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/platform"
	"github.com/kart-io/relayhub/pkg/receipt"
	"github.com/kart-io/relayhub/pkg/submission"
	"github.com/kart-io/relayhub/pkg/summary"
	"github.com/kart-io/relayhub/pkg/target"
)

// Service processes submissions. It holds no per-request state and is safe
// for concurrent use.
type Service struct {
	cfg        *config.Config
	normalizer *submission.Normalizer
	formatter  *summary.Formatter
	resolver   *target.Resolver
	dispatcher *dispatch.Dispatcher
	telemetry  *observability.TelemetryProvider
	logger     logger.Logger
}

// Option configures a Service
type Option func(*serviceOptions)

type serviceOptions struct {
	enricher       *enrichment.Enricher
	telemetry      *observability.TelemetryProvider
	dispatchOpts   []dispatch.Option
	normalizerOpts []submission.NormalizerOption
}

// WithEnricher enables origin enrichment
func WithEnricher(e *enrichment.Enricher) Option {
	return func(o *serviceOptions) {
		o.enricher = e
	}
}

// WithTelemetry enables spans and metrics
func WithTelemetry(tp *observability.TelemetryProvider) Option {
	return func(o *serviceOptions) {
		o.telemetry = tp
	}
}

// WithDispatchOptions passes options to the dispatcher
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(o *serviceOptions) {
		o.dispatchOpts = append(o.dispatchOpts, opts...)
	}
}

// WithNormalizerOptions passes options to the normalizer
func WithNormalizerOptions(opts ...submission.NormalizerOption) Option {
	return func(o *serviceOptions) {
		o.normalizerOpts = append(o.normalizerOpts, opts...)
	}
}

// NewService wires the pipeline around transport
func NewService(cfg *config.Config, transport platform.Transport, opts ...Option) *Service {
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}

	l := cfg.LoggerInstance
	if l == nil {
		l = logger.Discard
	}

	classifier := attachment.NewClassifier(attachment.Limits{
		MinBytes: cfg.MinAttachmentBytes,
		MaxBytes: cfg.MaxAttachmentBytes,
	})
	normalizerOpts := append([]submission.NormalizerOption{submission.WithEnricher(o.enricher)}, o.normalizerOpts...)
	formatter := summary.NewFormatter(summary.OptionsFromConfig(cfg), l)

	dispatchOpts := append([]dispatch.Option{
		dispatch.WithPacing(cfg.PacingDelay),
		dispatch.WithLogger(l),
		dispatch.WithTelemetry(o.telemetry),
	}, o.dispatchOpts...)

	return &Service{
		cfg:        cfg,
		normalizer: submission.NewNormalizer(classifier, normalizerOpts...),
		formatter:  formatter,
		resolver:   target.NewResolver(),
		dispatcher: dispatch.NewDispatcher(transport, formatter, dispatchOpts...),
		telemetry:  o.telemetry,
		logger:     l,
	}
}

// Process runs one submission to completion. It fails only with
// ErrConfigurationMissing, ErrInvalidConfig or ErrMalformedInput, before
// any destination is contacted; every later problem is reported in the
// acknowledgement.
func (s *Service) Process(ctx context.Context, body []byte, clientAddr string) (*Acknowledgement, error) {
	if err := s.cfg.Validate(); err != nil {
		s.logger.Error("Submission rejected", "error", err)
		return nil, err
	}

	sub, err := submission.Decode(body)
	if err != nil {
		s.logger.Warn("Malformed submission", "client", clientAddr, "error", err)
		return nil, err
	}

	ctx, span := s.telemetry.TraceSubmission(ctx)
	defer span.End()

	rec := s.normalizer.Normalize(ctx, sub, clientAddr)
	s.telemetry.SetSubmissionID(span, rec.ID)

	if err := rec.Attachment.Err(); err != nil {
		s.logger.Warn("Attachment not transmittable", "submission_id", rec.ID, "error", err)
	}

	destinations := s.resolver.Resolve(s.cfg.PrimaryDestination, rec.DestinationOverride)
	if rec.DestinationOverride != "" && !containsID(destinations, rec.DestinationOverride) {
		s.logger.Warn("Destination override rejected", "submission_id", rec.ID)
	}

	s.logger.Info("Submission received", "submission_id", rec.ID,
		"attachment", rec.Attachment.Status(), "location", rec.Location.Status(),
		"destinations", len(destinations))

	text := s.formatter.Render(rec)
	r := s.dispatcher.Dispatch(ctx, rec, text, destinations)

	s.telemetry.RecordSubmission(ctx, r.Status, r.Total)
	if r.Delivered() {
		s.telemetry.SetSpanSuccess(span)
	} else {
		s.telemetry.SetSpanError(span, errNotDelivered)
	}
	s.logger.Info("Submission processed", "submission_id", rec.ID, "status", r.Status,
		"successful", r.Successful, "failed", r.Failed)

	return newAcknowledgement(rec, r), nil
}

var errNotDelivered = errors.New("no destination accepted the summary")

func containsID(destinations []target.Destination, id string) bool {
	for _, d := range destinations {
		if d.ID == id {
			return true
		}
	}
	return false
}

// Acknowledgement is returned to the submitter
type Acknowledgement struct {
	Success      bool                     `json:"success"`
	SubmissionID string                   `json:"submissionId"`
	Status       string                   `json:"status"`
	Results      []receipt.DeliveryResult `json:"results"`
	Capture      CaptureSummary           `json:"capture"`
	Timestamp    time.Time                `json:"timestamp"`
}

// CaptureSummary describes what the submission carried without echoing
// any of it back
type CaptureSummary struct {
	Attachment       string `json:"attachment"`
	AttachmentReason string `json:"attachmentReason,omitempty"`
	AttachmentBytes  int    `json:"attachmentBytes,omitempty"`
	MimeType         string `json:"mimeType,omitempty"`
	Location         string `json:"location"`
	OriginResolved   bool   `json:"originResolved"`
}

func newAcknowledgement(rec *submission.Record, r *receipt.Receipt) *Acknowledgement {
	capture := CaptureSummary{
		Attachment:     rec.Attachment.Status(),
		Location:       rec.Location.Status(),
		OriginResolved: rec.Origin.Resolved,
	}
	switch rec.Attachment.State {
	case attachment.Decoded:
		capture.AttachmentBytes = rec.Attachment.SizeBytes
		capture.MimeType = rec.Attachment.MimeType
	case attachment.Denied, attachment.Undecodable:
		capture.AttachmentReason = rec.Attachment.Reason
	}

	return &Acknowledgement{
		Success:      r.Delivered(),
		SubmissionID: rec.ID,
		Status:       r.Status,
		Results:      r.Results,
		Capture:      capture,
		Timestamp:    r.Timestamp,
	}
}
