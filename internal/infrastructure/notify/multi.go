package notify

import (
	"context"
	"log/slog"

	"github.com/cntech/bitalert/internal/domain"
)

// Multi delivers through the primary notifier and copies the message to each
// mirror. Only the primary's outcome is reported to the caller.
type Multi struct {
	primary domain.Notifier
	mirrors []domain.Notifier
	logger  *slog.Logger
}

func NewMulti(primary domain.Notifier, logger *slog.Logger, mirrors ...domain.Notifier) *Multi {
	return &Multi{
		primary: primary,
		mirrors: mirrors,
		logger:  logger.With("component", "notifier"),
	}
}

func (m *Multi) Notify(ctx context.Context, recipient string, msg domain.Message) error {
	err := m.primary.Notify(ctx, recipient, msg)

	for _, mirror := range m.mirrors {
		if mErr := mirror.Notify(ctx, recipient, msg); mErr != nil {
			m.logger.Warn("Mirror notification failed",
				slog.String("recipient", recipient),
				slog.String("error", mErr.Error()))
		}
	}
	return err
}

// LogNotifier only logs. It stands in for SMTP in local runs.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "log_notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, recipient string, msg domain.Message) error {
	n.logger.Info("Notification",
		slog.String("recipient", recipient),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body))
	return nil
}
