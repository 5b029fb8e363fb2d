package events

import (
	"context"
	"log/slog"
	"strings"

	"hnenricher/common"
)

// TriggerRequest asks for one cycle to run.
type TriggerRequest struct {
	Cycle       string `json:"cycle"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// NewTriggerHandler builds a handler that passes valid requests to trigger.
// Unknown cycles and undecodable messages are marked and dropped. A busy
// scheduler is not an error: the request is dropped the same way a cron
// tick would be.
func NewTriggerHandler(known func(cycle string) bool, trigger func(cycle string) error, logger *slog.Logger) *TypedMessageHandler[TriggerRequest] {
	if logger == nil {
		logger = common.DiscardLogger()
	}
	logger = logger.With("component", "triggers")
	return &TypedMessageHandler[TriggerRequest]{
		Validate: func(msg *TriggerRequest) bool {
			msg.Cycle = strings.ToLower(strings.TrimSpace(msg.Cycle))
			if !known(msg.Cycle) {
				logger.Warn("dropping trigger for unknown cycle", "cycle", msg.Cycle)
				return false
			}
			return true
		},
		Process: func(_ context.Context, msg *TriggerRequest) error {
			if err := trigger(msg.Cycle); err != nil {
				logger.Warn("trigger not started", "cycle", msg.Cycle, "requested_by", msg.RequestedBy, "err", err)
				return nil
			}
			logger.Info("trigger started", "cycle", msg.Cycle, "requested_by", msg.RequestedBy)
			return nil
		},
		AlwaysMark: true,
	}
}
