package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultURL is the still-image endpoint of the ESP32-CAM the checkpoint ships with.
	DefaultURL = "http://192.168.2.165/cam-hi.jpg"
	// DefaultRequestTimeout bounds a single still request.
	DefaultRequestTimeout = 5 * time.Second

	// maxFrameBytes caps how much of a response is read as one frame.
	maxFrameBytes = 16 << 20
)

// ErrStatus is wrapped by errors for non-2xx camera responses.
var ErrStatus = errors.New("unexpected camera status")

// HTTPSource fetches one still image per request.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource returns a source polling url. A non-positive timeout uses
// DefaultRequestTimeout.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &HTTPSource{url: url, client: &http.Client{Timeout: timeout}}
}

// URL returns the endpoint being polled.
func (s *HTTPSource) URL() string { return s.url }

// Fetch requests a still image and decodes it. Every failure is transient from
// the caller's point of view; the error says which step failed.
func (s *HTTPSource) Fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build camera request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("camera request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read camera frame: %w", err)
	}
	return Decode(data)
}

// Decode decodes a single frame in any registered format.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty camera frame")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode camera frame: %w", err)
	}
	return img, nil
}
