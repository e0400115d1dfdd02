package submission

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kart-io/relayhub/internal/shape"
	"github.com/kart-io/relayhub/pkg/attachment"
	"github.com/kart-io/relayhub/pkg/enrichment"
)

// Normalizer turns decoded submissions into canonical records
type Normalizer struct {
	classifier *attachment.Classifier
	enricher   *enrichment.Enricher
	now        func() time.Time
	newID      func() string
}

// NormalizerOption configures a Normalizer
type NormalizerOption func(*Normalizer)

// WithEnricher enables the origin lookup
func WithEnricher(e *enrichment.Enricher) NormalizerOption {
	return func(n *Normalizer) {
		n.enricher = e
	}
}

// WithClock overrides the clock used for ReceivedAt
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		n.now = now
	}
}

// WithIDGenerator overrides submission id generation
func WithIDGenerator(newID func() string) NormalizerOption {
	return func(n *Normalizer) {
		n.newID = newID
	}
}

// NewNormalizer creates a normalizer classifying photos with classifier
func NewNormalizer(classifier *attachment.Classifier, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		classifier: classifier,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize builds the canonical record for sub. The only blocking step is
// the origin lookup, bounded by the enricher's timeout.
func (n *Normalizer) Normalize(ctx context.Context, sub *Submission, clientAddr string) *Record {
	if sub == nil {
		sub = &Submission{}
	}
	received := n.now()

	rec := &Record{
		ID:                  n.newID(),
		Mobile:              strings.TrimSpace(shape.Text(sub.Mobile)),
		Operator:            strings.TrimSpace(shape.Text(sub.Operator)),
		DestinationOverride: strings.TrimSpace(shape.Text(sub.DestinationOverride)),
		Location:            ParseLocation(sub.Location),
		Attachment:          n.classifier.Classify(sub.Photo),
		Device:              parseDevice(sub.DeviceInfo),
		ReceivedAt:          received,
		EventTime:           received,
	}
	if ts, ok := parseEventTime(sub.EventTime); ok {
		rec.EventTime = ts
		rec.EventTimeProvided = true
	}

	rec.Origin = n.enricher.Enrich(ctx, clientAddr)
	return rec
}
