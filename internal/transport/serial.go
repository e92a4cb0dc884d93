package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/checkpoint/internal/logger"
	"github.com/andresmejia3/checkpoint/internal/types"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Line protocol spoken by the badge reader controller.
const (
	RequestStart = "FACE_REQUEST"
	RequestEnd   = "END_REQUEST"
	NamePrefix   = "NAME:"
	IDPrefix     = "ID:"

	VerifiedPrefix = "FACE_VERIFIED:"
	UnknownReply   = "FACE_UNKNOWN"
)

// ErrClosed is returned once the transport has been closed.
var ErrClosed = errors.New("transport closed")

// MaxLineBytes bounds one protocol line. Longer lines are line noise and are
// dropped whole.
const MaxLineBytes = 4096

// ReadRetryDelay is the pause after a failed read before the link is read again.
var ReadRetryDelay = time.Second

// Serial reads identity claims from a line-oriented link and writes one reply
// per claim. NextClaim must only be called from one goroutine; Reply may be
// called from any.
type Serial struct {
	w   io.Writer
	enc *encoding.Encoder // guarded by wmu
	wmu sync.Mutex

	lines  chan string
	closer io.Closer

	closeOnce sync.Once
	closed    chan struct{}

	// parser state, owned by the NextClaim caller
	open  bool
	claim types.IdentityClaim
}

// Charset resolves a charset label such as "utf-8", "latin1" or "windows-1252".
// An empty label means UTF-8.
func Charset(label string) (encoding.Encoding, error) {
	if strings.TrimSpace(label) == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc, nil
}

// NewSerial starts reading lines from rw decoded with charset. If rw is an
// io.Closer it is closed by Close.
func NewSerial(rw io.ReadWriter, charset string) (*Serial, error) {
	enc, err := Charset(charset)
	if err != nil {
		return nil, err
	}

	s := &Serial{
		w:      rw,
		enc:    enc.NewEncoder(),
		lines:  make(chan string),
		closed: make(chan struct{}),
	}
	if c, ok := rw.(io.Closer); ok {
		s.closer = c
	}

	go s.readLoop(transform.NewReader(rw, enc.NewDecoder()))
	return s, nil
}

// readLoop splits r into lines until EOF or Close. Read errors are logged and
// retried; only the end of the link stops it.
func (s *Serial) readLoop(r io.Reader) {
	defer close(s.lines)

	br := bufio.NewReaderSize(r, MaxLineBytes)
	var (
		buf       []byte
		oversized bool
	)
	for {
		chunk, more, err := br.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			logger.Warning("Serial read failed, retrying", logger.LoggerOptions{Key: "error", Data: err})
			select {
			case <-s.closed:
				return
			case <-time.After(ReadRetryDelay):
			}
			continue
		}

		if !oversized && len(buf)+len(chunk) > MaxLineBytes {
			oversized = true
		}
		if !oversized {
			buf = append(buf, chunk...)
		}
		if more {
			continue
		}

		if oversized {
			logger.Warning("Dropped oversized serial line", logger.LoggerOptions{Key: "max_bytes", Data: MaxLineBytes})
			oversized = false
			buf = buf[:0]
			continue
		}

		line := string(buf)
		buf = buf[:0]
		select {
		case s.lines <- line:
		case <-s.closed:
			return
		}
	}
}

// NextClaim blocks until a complete request has been read. Missing NAME or ID
// lines leave the field empty; validity is the caller's decision. It returns
// io.EOF when the link ends, ErrClosed after Close, or ctx.Err(). Read errors
// never reach the caller.
func (s *Serial) NextClaim(ctx context.Context) (types.IdentityClaim, error) {
	for {
		select {
		case <-ctx.Done():
			return types.IdentityClaim{}, ctx.Err()
		case <-s.closed:
			return types.IdentityClaim{}, ErrClosed
		case line, ok := <-s.lines:
			if !ok {
				return types.IdentityClaim{}, io.EOF
			}
			if claim, done := s.feed(line); done {
				return claim, nil
			}
		}
	}
}

// feed advances the request parser by one line.
func (s *Serial) feed(raw string) (types.IdentityClaim, bool) {
	line := strings.TrimSpace(raw)

	switch {
	case line == RequestStart:
		if s.open {
			logger.Debug("Request restarted before END_REQUEST", logger.LoggerOptions{Key: "discarded", Data: s.claim})
		}
		s.open = true
		s.claim = types.IdentityClaim{}
	case !s.open:
		if line != "" {
			logger.Debug("Ignoring line outside request", logger.LoggerOptions{Key: "line", Data: line})
		}
	case line == RequestEnd:
		s.open = false
		return s.claim, true
	case strings.HasPrefix(line, NamePrefix):
		s.claim.Name = strings.TrimSpace(strings.TrimPrefix(line, NamePrefix))
	case strings.HasPrefix(line, IDPrefix):
		s.claim.ID = strings.TrimSpace(strings.TrimPrefix(line, IDPrefix))
	default:
		logger.Debug("Ignoring unknown line inside request", logger.LoggerOptions{Key: "line", Data: line})
	}
	return types.IdentityClaim{}, false
}

// FormatReply renders the wire reply for an outcome.
func FormatReply(o types.Outcome) string {
	if o.Verified() {
		return VerifiedPrefix + o.Name + "\n"
	}
	return UnknownReply + "\n"
}

// Reply writes the reply for o as a single write.
func (s *Serial) Reply(o types.Outcome) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}

	msg := FormatReply(o)

	s.wmu.Lock()
	defer s.wmu.Unlock()

	out, err := s.enc.String(msg)
	if err != nil {
		// Names outside the charset go out as UTF-8 rather than not at all
		out = msg
	}
	if _, err := io.WriteString(s.w, out); err != nil {
		return fmt.Errorf("failed to write reply: %w", err)
	}
	return nil
}

// Close stops reading and closes the underlying link if it can be closed.
func (s *Serial) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}
