package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/relayhub/pkg/config"
	"github.com/kart-io/relayhub/pkg/platform"
)

const testToken = "123456:ABC-secret"

func newTestSender(url string) *Sender {
	return NewSender(Options{
		BaseURL:          url,
		Token:            testToken,
		ParseMode:        config.ParseModeMarkdown,
		TextTimeout:      time.Second,
		UploadTimeout:    time.Second,
		MaxUploadTimeout: 2 * time.Second,
	}, nil)
}

func TestSender_SendText(t *testing.T) {
	var got sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot"+testToken+"/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	err := newTestSender(server.URL).SendText(context.Background(), "D1", "*hello*")
	require.NoError(t, err)
	assert.Equal(t, "D1", got.ChatID)
	assert.Equal(t, "*hello*", got.Text)
	assert.Equal(t, "Markdown", got.ParseMode)
}

func TestSender_SendTextClipsLongText(t *testing.T) {
	var got sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	require.NoError(t, newTestSender(server.URL).SendText(context.Background(), "D1", strings.Repeat("é", MaxTextRunes+10)))
	assert.Equal(t, MaxTextRunes, len([]rune(got.Text)))
}

func TestSender_SendPhoto(t *testing.T) {
	data := []byte("\x89PNG fake image bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot"+testToken+"/sendPhoto", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "D1", r.FormValue("chat_id"))
		assert.Equal(t, "Photo for 98765", r.FormValue("caption"))
		assert.Equal(t, "Markdown", r.FormValue("parse_mode"))

		file, header, err := r.FormFile("photo")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "photo.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		body, _ := io.ReadAll(file)
		assert.Equal(t, data, body)

		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	require.NoError(t, newTestSender(server.URL).SendPhoto(context.Background(), "D1", data, "image/png", "Photo for 98765"))
}

func TestSender_SendPhotoFilename(t *testing.T) {
	tests := []struct {
		mimeType string
		filename string
	}{
		{"image/svg+xml", "photo.svg"},
		{"image/jpeg", "photo.jpg"},
		{"image/pjpeg", "photo.jpg"},
		{"image/vnd.microsoft.icon", "photo.vnd"},
		{"", "photo.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, r.ParseMultipartForm(1<<20))
				_, header, err := r.FormFile("photo")
				require.NoError(t, err)
				assert.Equal(t, tt.filename, header.Filename)
				_, _ = w.Write([]byte(`{"ok":true}`))
			}))
			defer server.Close()

			require.NoError(t, newTestSender(server.URL).SendPhoto(context.Background(), "D1", []byte("img"), tt.mimeType, ""))
		})
	}
}

func TestSender_SendDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot"+testToken+"/sendDocument", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("document")
		require.NoError(t, err)
		assert.Equal(t, "submission-1.jpg", header.Filename)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	require.NoError(t, newTestSender(server.URL).SendDocument(context.Background(), "D1", []byte("bytes"), "submission-1.jpg", ""))
}

func TestSender_Rejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	err := newTestSender(server.URL).SendText(context.Background(), "D9", "hi")
	require.Error(t, err)

	var sendErr *platform.SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, "sendMessage", sendErr.Method)
	assert.Equal(t, 400, sendErr.StatusCode)
	assert.Equal(t, "Bad Request: chat not found", sendErr.Description)
}

func TestSender_NonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer server.Close()

	err := newTestSender(server.URL).SendText(context.Background(), "D1", "hi")
	assert.Equal(t, 502, platform.StatusCodeOf(err))
}

func TestSender_TimeoutAndRedaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer server.Close()

	s := newTestSender(server.URL)
	s.opts.TextTimeout = 50 * time.Millisecond

	start := time.Now()
	err := s.SendText(context.Background(), "D1", "hi")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, err.Error(), "request timed out")
	assert.NotContains(t, err.Error(), testToken)
}

func TestSender_ConnectionErrorRedacted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := newTestSender(url).SendText(context.Background(), "D1", "hi")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testToken)
	assert.Zero(t, platform.StatusCodeOf(err))
}

func TestSender_UploadTimeout(t *testing.T) {
	s := NewSender(Options{UploadTimeout: 15 * time.Second, MaxUploadTimeout: 30 * time.Second}, nil)
	assert.Equal(t, 15*time.Second, s.UploadTimeout(100*1024))
	assert.Equal(t, 17*time.Second, s.UploadTimeout(1024*1024))
	assert.Equal(t, 30*time.Second, s.UploadTimeout(10*1024*1024))
}

func TestSender_PlainParseMode(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	s := NewSender(Options{BaseURL: server.URL, Token: testToken, ParseMode: config.ParseModeNone}, nil)
	require.NoError(t, s.SendText(context.Background(), "D1", "hi"))
	_, hasParseMode := got["parse_mode"]
	assert.False(t, hasParseMode)
}
