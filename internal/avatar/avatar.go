// Package avatar copies provider profile pictures into storage the service
// controls.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxBytes caps both the declared and the actual download size.
const DefaultMaxBytes int64 = 5 << 20

var (
	ErrUnsupportedType = errors.New("avatar: unsupported content type")
	ErrTooLarge        = errors.New("avatar: image too large")
	ErrDownload        = errors.New("avatar: download failed")
)

// allowedTypes maps accepted content types to the stored file extension.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Store persists an image and returns its public URL.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Fetcher downloads a remote avatar and hands it to a Store.
type Fetcher struct {
	client   *http.Client
	store    Store
	maxBytes int64
}

// NewFetcher returns a Fetcher with its own timeout-bounded HTTP client.
func NewFetcher(store Store, maxBytes int64, timeout time.Duration) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}, store: store, maxBytes: maxBytes}
}

// Fetch downloads url and stores it under avatars/<owner>/<uuid><ext>.
// Only jpeg, png, webp and gif images up to maxBytes are accepted.
func (f *Fetcher) Fetch(ctx context.Context, owner, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrDownload, resp.StatusCode)
	}
	ctype, ext, err := contentType(resp.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}
	if resp.ContentLength > f.maxBytes {
		return "", fmt.Errorf("%w: declared %d bytes", ErrTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	if int64(len(data)) > f.maxBytes {
		return "", fmt.Errorf("%w: body exceeds %d bytes", ErrTooLarge, f.maxBytes)
	}

	key := fmt.Sprintf("avatars/%s/%s%s", owner, uuid.NewString(), ext)
	return f.store.Put(ctx, key, ctype, data)
}

func contentType(header string) (string, string, error) {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedType, header)
	}
	mt = strings.ToLower(mt)
	ext, ok := allowedTypes[mt]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedType, mt)
	}
	return mt, ext, nil
}
