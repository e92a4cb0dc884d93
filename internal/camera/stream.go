package camera

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/andresmejia3/checkpoint/internal/logger"
	"github.com/andresmejia3/checkpoint/internal/utils"
)

const reconnectDelay = time.Second

// frame is one JPEG and the time it was read off the stream.
type frame struct {
	data []byte
	at   time.Time
}

// StreamSource reads an MJPEG stream in the background and hands out the most
// recent frame. Fetch only returns frames that arrived after it was called, so
// a session never evaluates footage from before the claim or from a stream
// that has since dropped.
type StreamSource struct {
	url    string
	client *http.Client
	now    func() time.Time

	latest chan frame
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewStreamSource returns a source for the multipart stream at url.
// Nothing is fetched until Start.
func NewStreamSource(url string) *StreamSource {
	return &StreamSource{
		url: url,
		// No client timeout: the body is read for as long as the stream lives
		client: &http.Client{},
		now:    time.Now,
		latest: make(chan frame, 1),
	}
}

// Start connects in the background and keeps reconnecting until ctx is done
// or Close is called.
func (s *StreamSource) Start(ctx context.Context) {
	s.once.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				err := s.consume(ctx)
				s.drain()
				if ctx.Err() != nil {
					return
				}
				logger.Warning("Camera stream interrupted, reconnecting",
					logger.LoggerOptions{Key: "url", Data: s.url},
					logger.LoggerOptions{Key: "error", Data: err},
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(reconnectDelay):
				}
			}
		}()
	})
}

func (s *StreamSource) consume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}

	logger.Info("Camera stream connected", logger.LoggerOptions{Key: "url", Data: s.url})

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 256*1024), maxFrameBytes)
	scanner.Split(utils.SplitJpeg)

	for scanner.Scan() {
		s.publish(append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed by camera")
}

// publish replaces any unread frame with data.
func (s *StreamSource) publish(data []byte) {
	f := frame{data: data, at: s.now()}
	for {
		select {
		case s.latest <- f:
			return
		default:
		}
		s.drain()
	}
}

// drain discards the unread frame, if any.
func (s *StreamSource) drain() {
	select {
	case <-s.latest:
	default:
	}
}

// Fetch waits for the next frame read after the call.
func (s *StreamSource) Fetch(ctx context.Context) (image.Image, error) {
	requested := s.now()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case f := <-s.latest:
			if f.at.Before(requested) {
				continue
			}
			return Decode(f.data)
		}
	}
}

// Close stops the background reader.
func (s *StreamSource) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}
