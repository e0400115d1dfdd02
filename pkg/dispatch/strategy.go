package dispatch

import (
	"context"

	"github.com/kart-io/relayhub/pkg/platform"
	"github.com/kart-io/relayhub/pkg/receipt"
	"github.com/kart-io/relayhub/pkg/submission"
)

// Notices renders the texts the dispatcher sends next to the summary
type Notices interface {
	Caption(rec *submission.Record) string
	Filename(rec *submission.Record) string
	DeniedNotice(rec *submission.Record) string
	OutOfBoundsNotice(rec *submission.Record) string
	UndeliverableNotice(rec *submission.Record, cause error) string
}

// Strategy is one way of delivering the attachment bytes. Strategies are
// tried in order until one succeeds.
type Strategy interface {
	Name() string
	// Outcome is recorded when the strategy succeeds
	Outcome() receipt.AttachmentOutcome
	Send(ctx context.Context, t platform.Transport, destination string, rec *submission.Record, n Notices) error
}

// PhotoStrategy sends the attachment as a native photo
type PhotoStrategy struct{}

// Name implements Strategy
func (PhotoStrategy) Name() string { return "photo" }

// Outcome implements Strategy
func (PhotoStrategy) Outcome() receipt.AttachmentOutcome { return receipt.SentAsPrimary }

// Send implements Strategy
func (PhotoStrategy) Send(ctx context.Context, t platform.Transport, destination string, rec *submission.Record, n Notices) error {
	a := rec.Attachment
	return t.SendPhoto(ctx, destination, a.Data, a.MimeType, n.Caption(rec))
}

// DocumentStrategy sends the attachment as a generic file
type DocumentStrategy struct{}

// Name implements Strategy
func (DocumentStrategy) Name() string { return "document" }

// Outcome implements Strategy
func (DocumentStrategy) Outcome() receipt.AttachmentOutcome { return receipt.SentAsFallback }

// Send implements Strategy
func (DocumentStrategy) Send(ctx context.Context, t platform.Transport, destination string, rec *submission.Record, n Notices) error {
	return t.SendDocument(ctx, destination, rec.Attachment.Data, n.Filename(rec), n.Caption(rec))
}

// DefaultChain is photo first, then document
func DefaultChain() []Strategy {
	return []Strategy{PhotoStrategy{}, DocumentStrategy{}}
}
