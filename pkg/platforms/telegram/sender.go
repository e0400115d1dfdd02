// Package telegram provides the Telegram Bot API transport
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/kart-io/relayhub/pkg/attachment"
	"github.com/kart-io/relayhub/pkg/config"
	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/platform"
)

// uploadStep is the payload size that buys one extra second of upload time
const uploadStep = 512 * 1024

const maxResponseBytes = 1 << 20

// Options configures a Sender
type Options struct {
	BaseURL          string
	Token            string
	ParseMode        string
	TextTimeout      time.Duration
	UploadTimeout    time.Duration
	MaxUploadTimeout time.Duration
}

// OptionsFromConfig derives sender options from the service config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:          cfg.TelegramAPIURL,
		Token:            cfg.BotToken,
		ParseMode:        cfg.ParseMode,
		TextTimeout:      cfg.TextTimeout,
		UploadTimeout:    cfg.UploadTimeout,
		MaxUploadTimeout: cfg.MaxUploadTimeout,
	}
}

// Sender implements platform.Transport over the Bot API. Each call is
// bounded by its own timeout and never retried.
type Sender struct {
	opts   Options
	client *http.Client
	logger logger.Logger
}

var _ platform.Transport = (*Sender)(nil)

// NewSender creates a Telegram sender
func NewSender(opts Options, l logger.Logger) *Sender {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.telegram.org"
	}
	if opts.TextTimeout <= 0 {
		opts.TextTimeout = 10 * time.Second
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 15 * time.Second
	}
	if opts.MaxUploadTimeout < opts.UploadTimeout {
		opts.MaxUploadTimeout = opts.UploadTimeout
	}
	if l == nil {
		l = logger.Discard
	}
	return &Sender{
		opts:   opts,
		client: &http.Client{},
		logger: l,
	}
}

// Name returns the platform name
func (s *Sender) Name() string {
	return "telegram"
}

// SendText implements platform.Transport
func (s *Sender) SendText(ctx context.Context, destination, text string) error {
	body := sendMessageRequest{
		ChatID:                destination,
		Text:                  clip(text, MaxTextRunes),
		ParseMode:             s.parseMode(),
		DisableWebPagePreview: true,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal Telegram message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.TextTimeout)
	defer cancel()
	return s.call(ctx, "sendMessage", "application/json", bytes.NewReader(payload))
}

// SendPhoto implements platform.Transport
func (s *Sender) SendPhoto(ctx context.Context, destination string, data []byte, mimeType, caption string) error {
	filename := "photo." + attachment.ExtensionFor(mimeType)
	return s.upload(ctx, "sendPhoto", "photo", destination, data, filename, mimeType, caption)
}

// SendDocument implements platform.Transport
func (s *Sender) SendDocument(ctx context.Context, destination string, data []byte, filename, caption string) error {
	return s.upload(ctx, "sendDocument", "document", destination, data, filename, "application/octet-stream", caption)
}

// UploadTimeout returns the deadline for an upload of size bytes
func (s *Sender) UploadTimeout(size int) time.Duration {
	timeout := s.opts.UploadTimeout + time.Duration(size/uploadStep)*time.Second
	if timeout > s.opts.MaxUploadTimeout {
		return s.opts.MaxUploadTimeout
	}
	return timeout
}

func (s *Sender) upload(ctx context.Context, method, field, destination string, data []byte, filename, contentType, caption string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{{"chat_id", destination}}
	if caption != "" {
		fields = append(fields, [2]string{"caption", clip(caption, MaxCaptionRunes)})
		if pm := s.parseMode(); pm != "" {
			fields = append(fields, [2]string{"parse_mode", pm})
		}
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to build %s form: %w", method, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to build %s form: %w", method, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to build %s form: %w", method, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to build %s form: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.UploadTimeout(len(data)))
	defer cancel()
	return s.call(ctx, method, w.FormDataContentType(), &buf)
}

// call posts body to method and interprets the Bot API envelope. Every
// error it returns is a *platform.SendError free of the bot token.
func (s *Sender) call(ctx context.Context, method, contentType string, body io.Reader) error {
	endpoint := s.opts.BaseURL + "/bot" + s.opts.Token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return &platform.SendError{Method: method, Description: s.redact("failed to create request: " + err.Error())}
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		cause := err
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			cause = urlErr.Err
		}
		desc := s.redact(cause.Error())
		if errors.Is(cause, context.DeadlineExceeded) {
			desc = "request timed out"
		}
		s.logger.Warn("Telegram request failed", "method", method, "duration", time.Since(start), "error", desc)
		return &platform.SendError{Method: method, Description: desc, Cause: cause}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &platform.SendError{Method: method, StatusCode: resp.StatusCode, Description: s.redact("failed to read response: " + err.Error())}
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return &platform.SendError{Method: method, StatusCode: resp.StatusCode, Description: "malformed response"}
		}
		return &platform.SendError{Method: method, StatusCode: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
	}

	if !out.OK || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status := resp.StatusCode
		if out.ErrorCode != 0 {
			status = out.ErrorCode
		}
		desc := out.Description
		if desc == "" {
			desc = http.StatusText(status)
		}
		return &platform.SendError{Method: method, StatusCode: status, Description: s.redact(desc)}
	}

	s.logger.Debug("Telegram request succeeded", "method", method, "duration", time.Since(start))
	return nil
}

func (s *Sender) parseMode() string {
	if s.opts.ParseMode == "" || s.opts.ParseMode == config.ParseModeNone {
		return ""
	}
	return s.opts.ParseMode
}

func (s *Sender) redact(msg string) string {
	if s.opts.Token == "" {
		return msg
	}
	return strings.ReplaceAll(msg, s.opts.Token, "<redacted>")
}
