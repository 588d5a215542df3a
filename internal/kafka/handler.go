package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"fleet-sentinel/internal/alerting"
	"fleet-sentinel/internal/logging"
	"fleet-sentinel/internal/schema"
)

// Instrumenter evaluates one decoded envelope. *detection.Engine satisfies it.
type Instrumenter interface {
	InstrumentEnvelope(env schema.Envelope) *alerting.Alert
}

// EventHandler returns a MessageHandler that decodes each message as an
// event envelope, validates it and feeds it to engine.
//
// Malformed and invalid messages are logged and committed: redelivering
// them would fail the same way.
func EventHandler(engine Instrumenter, validator *schema.Validator, logger *slog.Logger) MessageHandler {
	return func(ctx context.Context, msg Message) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		var env schema.Envelope
		dec := json.NewDecoder(bytes.NewReader(msg.Value))
		dec.UseNumber()
		if err := dec.Decode(&env); err != nil {
			logger.Warn("dropping malformed event message",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			return nil
		}

		if err := validator.Validate(&env); err != nil {
			logger.Warn("dropping invalid event",
				"error", err,
				"kind", env.Kind,
				"source_id", env.SourceID,
				"context", logging.SafeContext(env.Context),
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			return nil
		}

		if alert := engine.InstrumentEnvelope(env); alert != nil {
			logger.Info("alert raised from kafka event",
				"category", alert.Category,
				"source_id", alert.SourceID,
				"offset", msg.Offset,
			)
		}
		return nil
	}
}
