package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dontdude/markcheck/internal/domain"
)

// Worker consumes work envelopes and publishes result envelopes, standing in
// for the external analysis service.
type Worker struct {
	pub         domain.Publisher
	resultTopic string
	catalog     Catalog
}

// NewWorker creates a Worker publishing to resultTopic.
func NewWorker(pub domain.Publisher, resultTopic string, catalog Catalog) *Worker {
	return &Worker{pub: pub, resultTopic: resultTopic, catalog: catalog}
}

// Handle analyzes one work message. It matches domain.Handler.
func (w *Worker) Handle(ctx context.Context, msg domain.Message) error {
	var env domain.WorkEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		slog.Error("Invalid work envelope, dropping", "msgID", msg.ID, "error", err)
		return fmt.Errorf("decode work envelope %s: %w", msg.ID, err)
	}
	if env.OwnerKey == "" || env.Name == "" {
		slog.Error("Work envelope without owner or name, dropping", "msgID", msg.ID)
		return fmt.Errorf("work envelope %s: missing uid or name", msg.ID)
	}

	results, err := json.Marshal(w.catalog.Analyze(env))
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	if err := w.pub.Publish(ctx, w.resultTopic, domain.ResultEnvelope{WorkEnvelope: env, Results: results}); err != nil {
		slog.Error("Failed to publish result", "ownerKey", env.OwnerKey, "name", env.Name, "error", err)
		return fmt.Errorf("publish result: %w", err)
	}
	slog.Info("Published result", "ownerKey", env.OwnerKey, "name", env.Name, "topic", w.resultTopic)
	return nil
}
