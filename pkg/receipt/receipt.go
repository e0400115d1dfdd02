// Package receipt provides delivery result aggregation for relayhub
package receipt

import (
	"time"
)

// AttachmentOutcome describes what happened to the attachment at one destination
type AttachmentOutcome string

// Attachment outcomes
const (
	NotAttempted   AttachmentOutcome = "not_attempted"
	SentAsPrimary  AttachmentOutcome = "sent_as_primary"
	SentAsFallback AttachmentOutcome = "sent_as_fallback"
	Failed         AttachmentOutcome = "failed"
)

// Receipt status values
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// DeliveryResult represents the result for a single destination. Success
// refers to the summary text; attachment problems never clear it.
type DeliveryResult struct {
	DestinationID     string            `json:"destinationId"`
	Success           bool              `json:"success"`
	AttachmentOutcome AttachmentOutcome `json:"attachmentOutcome"`
	ErrorDetail       string            `json:"errorDetail,omitempty"`
	Warnings          []string          `json:"warnings,omitempty"`
	Duration          time.Duration     `json:"-"`
}

// Warn records an absorbed failure on the result
func (r *DeliveryResult) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Receipt represents the aggregated outcome of one submission
type Receipt struct {
	SubmissionID string           `json:"submissionId"`
	Status       string           `json:"status"`
	Results      []DeliveryResult `json:"results"`
	Successful   int              `json:"successful"`
	Failed       int              `json:"failed"`
	Total        int              `json:"total"`
	Timestamp    time.Time        `json:"timestamp"`
}

// New aggregates per-destination results. The slice is kept as given.
func New(submissionID string, results []DeliveryResult) *Receipt {
	r := &Receipt{
		SubmissionID: submissionID,
		Results:      results,
		Total:        len(results),
		Timestamp:    time.Now(),
	}
	if r.Results == nil {
		r.Results = []DeliveryResult{}
	}

	for _, res := range results {
		if res.Success {
			r.Successful++
		} else {
			r.Failed++
		}
	}

	switch {
	case r.Successful == 0:
		r.Status = StatusFailed
	case r.Failed > 0:
		r.Status = StatusPartial
	default:
		r.Status = StatusSuccess
	}

	return r
}

// Delivered reports whether at least one destination received the summary
func (r *Receipt) Delivered() bool {
	return r.Successful > 0
}
