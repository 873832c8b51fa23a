package telegram

import (
	"context"

	"github.com/rewired-gh/polywhale/internal/logger"
	"github.com/rewired-gh/polywhale/internal/models"
)

// LogNotifier writes messages to the log instead of Telegram. Every message counts
// as delivered.
type LogNotifier struct{}

func (LogNotifier) SendWhale(_ context.Context, alert models.WhaleAlert) error {
	logger.Info("[notify] %s", FormatWhale(alert))
	return nil
}

func (LogNotifier) SendInsight(_ context.Context, insight models.Insight) error {
	logger.Info("[notify] %s", FormatInsight(insight))
	return nil
}

func (LogNotifier) SendError(_ context.Context, cycleErr error) error {
	logger.Info("[notify] %s", FormatError(cycleErr))
	return nil
}

func (LogNotifier) SendRecovery(_ context.Context, failureCount int) error {
	logger.Info("[notify] %s", FormatRecovery(failureCount))
	return nil
}
