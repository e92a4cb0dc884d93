package session

import (
	"context"
	"image"
	"time"

	"github.com/andresmejia3/checkpoint/internal/face"
	"github.com/andresmejia3/checkpoint/internal/logger"
	"github.com/andresmejia3/checkpoint/internal/types"
)

const (
	// DefaultBudget is how long a claim has to be confirmed by the camera.
	DefaultBudget = 10 * time.Second
	// DefaultPollInterval is the pause after a failed or non-matching frame.
	DefaultPollInterval = 100 * time.Millisecond
)

// State is a step of the verification state machine.
type State int

const (
	AwaitingSample State = iota
	Evaluating
	Verified
	Unknown
	Timeout
)

func (s State) String() string {
	switch s {
	case AwaitingSample:
		return "awaiting_sample"
	case Evaluating:
		return "evaluating"
	case Verified:
		return "verified"
	case Unknown:
		return "unknown"
	default:
		return "timeout"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Verified || s == Unknown || s == Timeout
}

// FrameSource acquires one camera frame. Errors are treated as transient.
type FrameSource interface {
	Fetch(ctx context.Context) (image.Image, error)
}

// FrameSourceFunc adapts a function to FrameSource.
type FrameSourceFunc func(ctx context.Context) (image.Image, error)

func (f FrameSourceFunc) Fetch(ctx context.Context) (image.Image, error) { return f(ctx) }

// Clock is the time source sessions use for their deadline.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Config holds everything a session needs besides the claim itself.
type Config struct {
	Frames    FrameSource
	Detector  face.Detector
	Extractor face.Extractor
	Matcher   face.Matcher
	Clock     Clock

	Budget       time.Duration
	PollInterval time.Duration
	// AcceptThreshold is re-checked on every match result even though the
	// matcher filters with its own threshold; the two may be configured apart.
	AcceptThreshold float64
}

// Session confirms one claimed identity within a time budget. A Session is
// single-use: Run may only be called once.
type Session struct {
	cfg         Config
	claimedName string
	id          string

	state     State
	frames    int
	evaluated int
	best      types.MatchResult
}

// New returns a session for claimedName. id is only used to correlate log lines.
func New(cfg Config, id, claimedName string) *Session {
	if cfg.Clock == nil {
		cfg.Clock = RealClock
	}
	if cfg.Extractor == nil {
		cfg.Extractor = face.HistogramExtractor{}
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	return &Session{cfg: cfg, claimedName: claimedName, id: id, state: AwaitingSample}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Frames returns how many frames were acquired successfully.
func (s *Session) Frames() int { return s.frames }

// BestMatch returns the highest-confidence match seen for any evaluated face.
func (s *Session) BestMatch() types.MatchResult { return s.best }

// Run drives the state machine until a face matches the claim or the budget
// runs out. Elapsed wall-clock time, not frame count, ends the session. If
// no face was ever evaluated the outcome is Timeout, otherwise Unknown.
// Cancelling ctx ends the session early as Timeout.
func (s *Session) Run(ctx context.Context) types.Outcome {
	deadline := s.cfg.Clock.Now().Add(s.cfg.Budget)

	logger.Debug("Session started",
		logger.LoggerOptions{Key: "session", Data: s.id},
		logger.LoggerOptions{Key: "claimed_name", Data: s.claimedName},
		logger.LoggerOptions{Key: "budget", Data: s.cfg.Budget.String()},
	)

	for s.cfg.Clock.Now().Before(deadline) {
		s.transition(AwaitingSample)

		frame, err := s.fetch(ctx, deadline)
		if err != nil {
			logger.Warning("Camera error",
				logger.LoggerOptions{Key: "session", Data: s.id},
				logger.LoggerOptions{Key: "error", Data: err},
			)
		} else {
			s.frames++
			s.transition(Evaluating)
			if s.evaluate(frame) {
				s.transition(Verified)
				return types.Verified(s.claimedName)
			}
		}

		if !s.wait(ctx, deadline) {
			s.transition(Timeout)
			return types.Timeout()
		}
	}

	if s.evaluated > 0 {
		s.transition(Unknown)
		return types.Unknown()
	}
	s.transition(Timeout)
	return types.Timeout()
}

// fetch acquires one frame, giving the request no more than what is left of
// the budget on the session clock.
func (s *Session) fetch(ctx context.Context, deadline time.Time) (image.Image, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, deadline.Sub(s.cfg.Clock.Now()))
	defer cancel()
	return s.cfg.Frames.Fetch(fetchCtx)
}

// evaluate matches every detected region in order and stops at the first
// one that confirms the claim.
func (s *Session) evaluate(frame image.Image) bool {
	if s.cfg.Detector == nil || s.cfg.Matcher == nil {
		return false
	}

	for region := range s.cfg.Detector.Detect(frame) {
		sig, err := s.cfg.Extractor.Extract(face.Crop(frame, region))
		if err != nil {
			logger.Debug("Skipping unusable face region",
				logger.LoggerOptions{Key: "session", Data: s.id},
				logger.LoggerOptions{Key: "error", Data: err},
			)
			continue
		}

		s.evaluated++
		res := s.cfg.Matcher.Match(sig)
		if res.Confidence > s.best.Confidence || s.best.Label == "" {
			s.best = res
		}

		logger.Debug("Face matched",
			logger.LoggerOptions{Key: "session", Data: s.id},
			logger.LoggerOptions{Key: "label", Data: res.Label},
			logger.LoggerOptions{Key: "confidence", Data: res.Confidence},
		)

		if res.Label == s.claimedName && res.Confidence > s.cfg.AcceptThreshold {
			return true
		}
	}
	return false
}

// wait pauses for the poll interval, never past the deadline. It returns
// false when the caller's ctx is done.
func (s *Session) wait(ctx context.Context, deadline time.Time) bool {
	if ctx.Err() != nil {
		return false
	}
	remaining := deadline.Sub(s.cfg.Clock.Now())
	d := min(s.cfg.PollInterval, remaining)
	if d <= 0 {
		return true
	}

	select {
	case <-ctx.Done():
		return false
	case <-s.cfg.Clock.After(d):
		return true
	}
}

func (s *Session) transition(to State) {
	if s.state == to {
		return
	}
	logger.Debug("Session state",
		logger.LoggerOptions{Key: "session", Data: s.id},
		logger.LoggerOptions{Key: "from", Data: s.state.String()},
		logger.LoggerOptions{Key: "to", Data: to.String()},
	)
	s.state = to
}
