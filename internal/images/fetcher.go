package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/portfolio/internal/datauri"
	_ "golang.org/x/image/webp"
)

// MaxImageBytes bounds how much of a remote image is read
const MaxImageBytes = 10 * 1024 * 1024

// Fetcher retrieves images for the deferred loader
type Fetcher struct {
	HTTPClient *http.Client
}

// NewFetcher creates a new image fetcher
func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ImageInfo describes a fetched image
type ImageInfo struct {
	Format string
	Width  int
	Height int
	Bytes  int
}

// Fetch retrieves src and checks that it decodes as an image
func (f *Fetcher) Fetch(ctx context.Context, src string) error {
	_, err := f.Probe(ctx, src)
	return err
}

// Probe retrieves src and returns its image header details.
// Data URIs are decoded in place without touching the network.
func (f *Fetcher) Probe(ctx context.Context, src string) (*ImageInfo, error) {
	var data []byte
	if datauri.IsDataURI(src) {
		_, payload, err := datauri.Decode(src)
		if err != nil {
			return nil, err
		}
		data = payload
	} else {
		payload, err := f.download(ctx, src)
		if err != nil {
			return nil, err
		}
		data = payload
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return &ImageInfo{
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
		Bytes:  len(data),
	}, nil
}

func (f *Fetcher) download(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	slog.Debug("Downloaded image", "url", src, "bytes", len(data), "content_type", resp.Header.Get("Content-Type"))
	return data, nil
}
