package notify

import (
	"context"

	"github.com/hupe1980/nurturemesh/core"
	"github.com/hupe1980/nurturemesh/logging"
)

// LogDeliverer writes every delivery to the structured logger instead of
// an external transport. Default deliverer: safe for development and dry
// runs, never loses a message silently.
type LogDeliverer struct {
	logger logging.Logger
}

// NewLogDeliverer constructs a log-backed deliverer. A nil logger falls
// back to the slog default.
func NewLogDeliverer(logger logging.Logger) *LogDeliverer {
	if logger == nil {
		logger = logging.NewDefaultSlogLogger()
	}
	return &LogDeliverer{logger: logger}
}

// Deliver logs the resolved message.
func (d *LogDeliverer) Deliver(_ context.Context, del core.Delivery) error {
	d.logger.Info("delivering message lead_id=%s action=%s template=%s channel=%s subject=%q",
		del.Lead.ID, del.Action.Kind, del.Template.Name, del.Channel, del.Subject)
	return nil
}

// Interface compliance (compile-time assertion)
var _ core.Deliverer = (*LogDeliverer)(nil)
