package checkpoint

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/andresmejia3/checkpoint/internal/logger"
	"github.com/andresmejia3/checkpoint/internal/session"
	"github.com/andresmejia3/checkpoint/internal/store"
	"github.com/andresmejia3/checkpoint/internal/transport"
	"github.com/andresmejia3/checkpoint/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Transport delivers identity claims and carries replies back to the reader.
type Transport interface {
	NextClaim(ctx context.Context) (types.IdentityClaim, error)
	Reply(o types.Outcome) error
}

// Recorder persists confirmed arrivals.
type Recorder interface {
	Record(ctx context.Context, id, name string) (store.Record, bool, error)
}

// Stats summarises what the controller has done since it started.
type Stats struct {
	Claims      int       `json:"claims"`
	Verified    int       `json:"verified"`
	Rejected    int       `json:"rejected"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	LastAt      time.Time `json:"last_at,omitzero"`
}

// Controller processes claims strictly one at a time: each claim gets one
// verification session, exactly one reply, and on success one attendance record.
type Controller struct {
	transport Transport
	recorder  Recorder
	session   session.Config
	validate  *validator.Validate
	now       func() time.Time

	statsMutex sync.RWMutex
	stats      Stats
}

// New wires a controller. sessionCfg is shared by every session it starts.
func New(t Transport, r Recorder, sessionCfg session.Config) *Controller {
	return &Controller{
		transport: t,
		recorder:  r,
		session:   sessionCfg,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// TransportRetryDelay is the pause after a transport error before the next read.
var TransportRetryDelay = time.Second

// Run reads and handles claims until ctx is cancelled or the transport ends.
// Reaching the end of the line is a clean shutdown; any other transport error
// is logged and the loop keeps going.
func (c *Controller) Run(ctx context.Context) error {
	logger.Info("Waiting for badge claims")

	for {
		claim, err := c.transport.NextClaim(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, io.EOF), errors.Is(err, transport.ErrClosed):
			logger.Info("Claim transport closed")
			return nil
		default:
			logger.Warning("Claim read failed", logger.LoggerOptions{Key: "error", Data: err})
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(TransportRetryDelay):
			}
			continue
		}

		c.Handle(ctx, claim)
	}
}

// Handle runs one claim to completion and always sends exactly one reply.
func (c *Controller) Handle(ctx context.Context, claim types.IdentityClaim) types.Outcome {
	id := uuid.NewString()
	log := []logger.LoggerOptions{
		{Key: "session", Data: id},
		{Key: "claimed_id", Data: claim.ID},
		{Key: "claimed_name", Data: claim.Name},
	}

	var outcome types.Outcome
	if err := c.validate.Struct(claim); err != nil {
		logger.Warning("Rejecting incomplete claim", append(log, logger.LoggerOptions{Key: "error", Data: err})...)
		outcome = types.Unknown()
	} else {
		logger.Info("Verifying face for claim", log...)
		outcome = session.New(c.session, id, claim.Name).Run(ctx)
	}

	if err := c.transport.Reply(outcome); err != nil {
		logger.Error("Failed to send reply", append(log, logger.LoggerOptions{Key: "error", Data: err})...)
	}

	if outcome.Verified() {
		logger.Info("Face verified", log...)
		if c.recorder != nil {
			// The reply is already out; a shutdown must not lose the record
			if _, _, err := c.recorder.Record(context.WithoutCancel(ctx), claim.ID, outcome.Name); err != nil {
				logger.Error("Failed to record attendance", append(log, logger.LoggerOptions{Key: "error", Data: err})...)
			}
		}
	} else {
		logger.Info("Face verification failed", append(log, logger.LoggerOptions{Key: "outcome", Data: outcome.Kind.String()})...)
	}

	c.track(claim, outcome)
	return outcome
}

func (c *Controller) track(claim types.IdentityClaim, o types.Outcome) {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()

	c.stats.Claims++
	if o.Verified() {
		c.stats.Verified++
	} else {
		c.stats.Rejected++
	}
	c.stats.LastOutcome = o.Kind.String()
	c.stats.LastName = claim.Name
	c.stats.LastAt = c.now()
}

// Stats returns a snapshot of the counters.
func (c *Controller) Stats() Stats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
