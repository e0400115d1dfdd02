package summary

import (
	"fmt"

	"github.com/kart-io/relayhub/pkg/attachment"
	"github.com/kart-io/relayhub/pkg/submission"
)

// maxCauseRunes bounds the transport error quoted in a notice
const maxCauseRunes = 200

func (f *Formatter) who(rec *submission.Record) string {
	if m := f.mobile(rec.Mobile); m != "" {
		return f.escape(truncate(m, f.opts.MaxFieldRunes))
	}
	return Unknown
}

// Caption returns the caption sent with the photo or document
func (f *Formatter) Caption(rec *submission.Record) string {
	return "Photo for " + f.who(rec)
}

// Filename returns the name used when the photo is sent as a document
func (f *Formatter) Filename(rec *submission.Record) string {
	id := rec.ID
	if id == "" {
		id = "capture"
	}
	return fmt.Sprintf("submission-%s.%s", id, rec.Attachment.Extension())
}

// DeniedNotice tells the destination that the user refused the camera
func (f *Formatter) DeniedNotice(rec *submission.Record) string {
	reason := rec.Attachment.Reason
	if reason == "" {
		reason = "permission denied"
	}
	return fmt.Sprintf("Camera permission denied for %s: %s", f.who(rec),
		f.escape(truncate(reason, f.opts.MaxFieldRunes)))
}

// OutOfBoundsNotice reports a photo that was captured but is too large to
// upload
func (f *Formatter) OutOfBoundsNotice(rec *submission.Record) string {
	return fmt.Sprintf("Photo captured for %s (%s) but too large to upload", f.who(rec),
		attachment.HumanSize(rec.Attachment.SizeBytes))
}

// UndeliverableNotice reports a photo that every upload attempt rejected
func (f *Formatter) UndeliverableNotice(rec *submission.Record, cause error) string {
	msg := Unknown
	if cause != nil {
		msg = f.escape(truncate(cause.Error(), maxCauseRunes))
	}
	return fmt.Sprintf("Photo captured for %s (%s) but upload failed: %s", f.who(rec),
		attachment.HumanSize(rec.Attachment.SizeBytes), msg)
}
