package notify

import (
	"context"
	"log/slog"

	"nameaffirm/internal/verifiedname/models"
)

// LogNotifier writes changes to the structured log. It is the notifier when
// Kafka is disabled and the fallback when publishing fails.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, c models.Change) {
	n.logger.InfoContext(ctx, EventType,
		"kind", c.Kind,
		"user_id", c.Record.UserID,
		"verified_name_id", c.Record.ID,
		"status", c.Record.Status,
		"previous_status", c.PrevStatus,
	)
}
