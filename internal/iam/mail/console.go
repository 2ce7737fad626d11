package mail

import (
	"context"
	"log/slog"
)

// ConsoleSender logs messages instead of delivering them. The default for
// local development so flows can be exercised without AWS credentials.
type ConsoleSender struct {
	Logger *slog.Logger
}

func (s *ConsoleSender) Send(ctx context.Context, msg Message) error {
	s.Logger.Info("outbound email (console sender)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.TextBody),
	)
	return nil
}
