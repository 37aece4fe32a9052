package service

import (
	"context"

	"go.uber.org/zap"
)

// LogMailer writes outbound email to the log instead of a provider.
// It stands in until an SMTP or API-backed Mailer is configured.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs the logging mailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send logs the message and reports success.
func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.Info("email delivery",
		zap.String("to", to), zap.String("subject", subject))
	return nil
}

// LogSMSSender writes outbound SMS to the log instead of a provider.
type LogSMSSender struct {
	logger *zap.Logger
}

// NewLogSMSSender constructs the logging sender.
func NewLogSMSSender(logger *zap.Logger) *LogSMSSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSMSSender{logger: logger}
}

// Send logs the message and reports success.
func (s *LogSMSSender) Send(ctx context.Context, phone, message string) error {
	s.logger.Info("sms delivery", zap.String("phone", phone))
	return nil
}
