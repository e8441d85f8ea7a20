// Package correlator lands analysis results: it persists each result envelope
// and then forwards the result payload to the owner's live listeners.
package correlator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dontdude/markcheck/internal/domain"
)

// Broadcaster delivers a payload to the live listeners of an owner key and
// reports how many received it.
type Broadcaster interface {
	Publish(ownerKey string, payload json.RawMessage) int
}

// Correlator is the result-topic handler.
type Correlator struct {
	store domain.ResultStore
	live  Broadcaster
	now   func() time.Time
}

// New returns a Correlator writing to store and delivering through live.
func New(store domain.ResultStore, live Broadcaster) *Correlator {
	return &Correlator{
		store: store,
		live:  live,
		now:   time.Now,
	}
}

// Handle processes one result message. Persistence gates delivery: a result
// that could not be stored is never sent live, and the store write is not retried.
// It is safe for concurrent use on distinct messages.
func (c *Correlator) Handle(ctx context.Context, msg domain.Message) error {
	env, err := decode(msg.Payload)
	if err != nil {
		slog.Error("Discarding undecodable result", "msgID", msg.ID, "error", err)
		return err
	}

	log := slog.With("ownerKey", env.OwnerKey, "name", env.Name, "msgID", msg.ID)
	log.Info("Received trademark results")

	rec, err := c.store.Save(ctx, domain.NewRecord(env, c.now().UTC()))
	if err != nil {
		log.Error("Failed to persist trademark results", "error", err)
		return fmt.Errorf("%w: owner %s: %w", domain.ErrPersistence, env.OwnerKey, err)
	}
	log.Info("Saved trademark results", "recordID", rec.ID)

	if n := c.live.Publish(env.OwnerKey, env.Results); n > 0 {
		log.Info("Sent results to live listeners", "listeners", n)
	}
	return nil
}

func decode(payload []byte) (domain.ResultEnvelope, error) {
	var env domain.ResultEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, fmt.Errorf("%w: %w", domain.ErrInvalidEnvelope, err)
	}
	if env.OwnerKey == "" {
		return env, fmt.Errorf("%w: missing owner key", domain.ErrInvalidEnvelope)
	}
	if len(env.Results) == 0 || string(env.Results) == "null" {
		return env, fmt.Errorf("%w: missing results", domain.ErrInvalidEnvelope)
	}
	return env, nil
}
