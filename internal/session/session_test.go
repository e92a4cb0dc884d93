package session

import (
	"context"
	"errors"
	"image"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresmejia3/checkpoint/internal/face"
	"github.com/andresmejia3/checkpoint/internal/types"
)

// wholeFrame reports every frame as a single face.
type wholeFrame struct{}

func (wholeFrame) Detect(frame image.Image) iter.Seq[image.Rectangle] {
	return func(yield func(image.Rectangle) bool) {
		yield(frame.Bounds())
	}
}

// noFaces never finds anything.
type noFaces struct{}

func (noFaces) Detect(image.Image) iter.Seq[image.Rectangle] {
	return func(func(image.Rectangle) bool) {}
}

// twoFaces splits each frame into a left and a right face.
type twoFaces struct{}

func (twoFaces) Detect(frame image.Image) iter.Seq[image.Rectangle] {
	return func(yield func(image.Rectangle) bool) {
		b := frame.Bounds()
		mid := b.Min.X + b.Dx()/2
		if !yield(image.Rect(b.Min.X, b.Min.Y, mid, b.Max.Y)) {
			return
		}
		yield(image.Rect(mid, b.Min.Y, b.Max.X, b.Max.Y))
	}
}

// fixedMatcher returns the same results in turn, repeating the last one.
type fixedMatcher struct {
	results []types.MatchResult
	calls   int
}

func (m *fixedMatcher) Match(face.Signature) types.MatchResult {
	i := min(m.calls, len(m.results)-1)
	m.calls++
	return m.results[i]
}

func frameSource(n *atomic.Int32) FrameSource {
	return FrameSourceFunc(func(ctx context.Context) (image.Image, error) {
		n.Add(1)
		return image.NewGray(image.Rect(0, 0, 40, 40)), nil
	})
}

func failingSource(n *atomic.Int32) FrameSource {
	return FrameSourceFunc(func(ctx context.Context) (image.Image, error) {
		n.Add(1)
		return nil, errors.New("connection refused")
	})
}

func testConfig(frames FrameSource, det face.Detector, m face.Matcher, budget time.Duration) Config {
	return Config{
		Frames:          frames,
		Detector:        det,
		Matcher:         m,
		Budget:          budget,
		PollInterval:    10 * time.Millisecond,
		AcceptThreshold: face.DefaultThreshold,
	}
}

func TestRun_VerifiedFirstFrame(t *testing.T) {
	var fetches atomic.Int32
	m := &fixedMatcher{results: []types.MatchResult{{Label: "alice", Confidence: 0.75}}}
	s := New(testConfig(frameSource(&fetches), wholeFrame{}, m, time.Second), "t1", "alice")

	start := time.Now()
	out := s.Run(context.Background())

	if out != types.Verified("alice") {
		t.Fatalf("expected Verified(alice), got %+v", out)
	}
	if s.State() != Verified {
		t.Errorf("expected state Verified, got %s", s.State())
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("expected exactly one frame, got %d", got)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("verification took too long: %s", elapsed)
	}
}

func TestRun_TimeoutWhenCameraFails(t *testing.T) {
	var fetches atomic.Int32
	budget := 200 * time.Millisecond
	m := &fixedMatcher{results: []types.MatchResult{{Label: "alice", Confidence: 1}}}
	s := New(testConfig(failingSource(&fetches), wholeFrame{}, m, budget), "t2", "alice")

	start := time.Now()
	out := s.Run(context.Background())
	elapsed := time.Since(start)

	if out.Kind != types.OutcomeTimeout {
		t.Fatalf("expected Timeout, got %s", out.Kind)
	}
	if elapsed < budget {
		t.Errorf("session ended before its budget: %s", elapsed)
	}
	if elapsed > budget+300*time.Millisecond {
		t.Errorf("session overran its budget: %s", elapsed)
	}
	if fetches.Load() < 2 {
		t.Errorf("expected the camera to be retried, got %d attempts", fetches.Load())
	}
	if m.calls != 0 {
		t.Errorf("matcher should not run without frames, ran %d times", m.calls)
	}
}

func TestRun_TimeoutWhenNoFaceDetected(t *testing.T) {
	var fetches atomic.Int32
	m := &fixedMatcher{results: []types.MatchResult{{Label: "alice", Confidence: 1}}}
	s := New(testConfig(frameSource(&fetches), noFaces{}, m, 150*time.Millisecond), "t3", "alice")

	out := s.Run(context.Background())
	if out.Kind != types.OutcomeTimeout {
		t.Fatalf("expected Timeout, got %s", out.Kind)
	}
	if s.Frames() == 0 {
		t.Error("expected frames to have been acquired")
	}
}

func TestRun_UnknownForOtherIdentity(t *testing.T) {
	var fetches atomic.Int32
	m := &fixedMatcher{results: []types.MatchResult{{Label: "bob", Confidence: 0.9}}}
	s := New(testConfig(frameSource(&fetches), wholeFrame{}, m, 150*time.Millisecond), "t4", "alice")

	out := s.Run(context.Background())
	if out.Kind != types.OutcomeUnknown {
		t.Fatalf("expected Unknown, got %s", out.Kind)
	}
	if out.Name != "" {
		t.Errorf("expected no name on Unknown, got %q", out.Name)
	}
	if best := s.BestMatch(); best.Label != "bob" {
		t.Errorf("expected best match bob, got %+v", best)
	}
}

func TestRun_AcceptThreshold(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		threshold  float64
		want       types.OutcomeKind
	}{
		{name: "above", confidence: 0.61, threshold: 0.6, want: types.OutcomeVerified},
		{name: "equal", confidence: 0.6, threshold: 0.6, want: types.OutcomeUnknown},
		{name: "stricter session", confidence: 0.7, threshold: 0.8, want: types.OutcomeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fetches atomic.Int32
			m := &fixedMatcher{results: []types.MatchResult{{Label: "alice", Confidence: tt.confidence}}}
			cfg := testConfig(frameSource(&fetches), wholeFrame{}, m, 100*time.Millisecond)
			cfg.AcceptThreshold = tt.threshold

			if out := New(cfg, "t5", "alice").Run(context.Background()); out.Kind != tt.want {
				t.Errorf("expected %s, got %s", tt.want, out.Kind)
			}
		})
	}
}

func TestRun_LaterFrameVerifies(t *testing.T) {
	var fetches atomic.Int32
	m := &fixedMatcher{results: []types.MatchResult{
		{Label: types.UnknownLabel},
		{Label: "bob", Confidence: 0.8},
		{Label: "alice", Confidence: 0.9},
	}}
	s := New(testConfig(frameSource(&fetches), wholeFrame{}, m, time.Second), "t6", "alice")

	if out := s.Run(context.Background()); out != types.Verified("alice") {
		t.Fatalf("expected Verified(alice), got %+v", out)
	}
	if got := fetches.Load(); got != 3 {
		t.Errorf("expected three frames, got %d", got)
	}
}

func TestRun_AnyRegionInFrameVerifies(t *testing.T) {
	var fetches atomic.Int32
	m := &fixedMatcher{results: []types.MatchResult{
		{Label: "bob", Confidence: 0.9},
		{Label: "alice", Confidence: 0.7},
	}}
	s := New(testConfig(frameSource(&fetches), twoFaces{}, m, time.Second), "t7", "alice")

	if out := s.Run(context.Background()); !out.Verified() {
		t.Fatalf("expected second face to verify, got %+v", out)
	}
	if fetches.Load() != 1 {
		t.Errorf("expected verification within one frame, got %d", fetches.Load())
	}
}

func TestRun_CancelledContext(t *testing.T) {
	var fetches atomic.Int32
	m := &fixedMatcher{results: []types.MatchResult{{Label: "bob", Confidence: 0.9}}}
	s := New(testConfig(frameSource(&fetches), wholeFrame{}, m, 10*time.Second), "t8", "alice")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	out := s.Run(ctx)
	if out.Kind != types.OutcomeTimeout {
		t.Errorf("expected Timeout on cancellation, got %s", out.Kind)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation was not honoured promptly: %s", elapsed)
	}
}

func TestRun_FetchContextEndsWithBudget(t *testing.T) {
	blocking := FrameSourceFunc(func(ctx context.Context) (image.Image, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m := &fixedMatcher{results: []types.MatchResult{{Label: "alice", Confidence: 1}}}
	s := New(testConfig(blocking, wholeFrame{}, m, 100*time.Millisecond), "t9", "alice")

	start := time.Now()
	if out := s.Run(context.Background()); out.Kind != types.OutcomeTimeout {
		t.Fatalf("expected Timeout, got %s", out.Kind)
	}
	if elapsed := time.Since(start); elapsed > 600*time.Millisecond {
		t.Errorf("blocked camera request outlived the budget: %s", elapsed)
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{}, "", "alice")
	if s.cfg.Budget != DefaultBudget {
		t.Errorf("expected default budget %s, got %s", DefaultBudget, s.cfg.Budget)
	}
	if s.cfg.Clock == nil || s.cfg.Extractor == nil {
		t.Error("expected clock and extractor defaults")
	}
	if s.State() != AwaitingSample || s.State().Terminal() {
		t.Errorf("expected fresh session in AwaitingSample, got %s", s.State())
	}
}

// stepClock only moves when the session waits, so a run takes no real time.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRun_InjectedClockBoundsSession(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	var fetches int
	var longest time.Duration
	frames := FrameSourceFunc(func(ctx context.Context) (image.Image, error) {
		fetches++
		if dl, ok := ctx.Deadline(); ok {
			longest = max(longest, time.Until(dl))
		}
		return nil, errors.New("connection refused")
	})

	cfg := testConfig(frames, wholeFrame{}, &fixedMatcher{results: []types.MatchResult{{Label: "alice", Confidence: 1}}}, 10*time.Second)
	cfg.Clock = clock
	cfg.PollInterval = 100 * time.Millisecond

	start := time.Now()
	out := New(cfg, "t10", "alice").Run(context.Background())

	if out.Kind != types.OutcomeTimeout {
		t.Fatalf("expected Timeout, got %s", out.Kind)
	}
	if fetches != 100 {
		t.Errorf("expected one fetch per 100ms of a 10s budget, got %d", fetches)
	}
	if longest > 10*time.Second {
		t.Errorf("fetch deadline %s exceeds the budget", longest)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("session followed the wall clock instead of the injected one: %s", elapsed)
	}
}

func TestRun_FetchDeadlineFollowsInjectedClock(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	var remaining []time.Duration
	frames := FrameSourceFunc(func(ctx context.Context) (image.Image, error) {
		dl, ok := ctx.Deadline()
		if !ok {
			t.Fatal("fetch context has no deadline")
		}
		remaining = append(remaining, time.Until(dl))
		// A slow camera eats session time on the injected clock
		clock.advance(4 * time.Second)
		return nil, errors.New("timeout")
	})

	cfg := testConfig(frames, wholeFrame{}, &fixedMatcher{results: []types.MatchResult{{Label: "alice", Confidence: 1}}}, 10*time.Second)
	cfg.Clock = clock
	cfg.PollInterval = time.Second

	if out := New(cfg, "t11", "alice").Run(context.Background()); out.Kind != types.OutcomeTimeout {
		t.Fatalf("expected Timeout, got %s", out.Kind)
	}
	// 10s budget: fetches start at 0s, 5s; each attempt plus pause takes 5s
	if len(remaining) != 2 {
		t.Fatalf("expected 2 fetches, got %d", len(remaining))
	}
	if remaining[1] > 5*time.Second+100*time.Millisecond || remaining[1] < 4*time.Second {
		t.Errorf("second fetch should get about 5s of budget, got %s", remaining[1])
	}
}
