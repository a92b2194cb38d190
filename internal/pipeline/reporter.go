package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// ErrorNotifier pushes failure alerts to operators.
type ErrorNotifier interface {
	NotifyError(ctx context.Context, component string, err error)
}

// Reporter fans job failures out to the log, the errors bus channel, and the
// notifier. Bus and notifier are optional; the log always receives the
// failure.
type Reporter struct {
	bus      domain.SignalBus
	notifier ErrorNotifier
	logger   *slog.Logger
}

// NewReporter creates a Reporter.
func NewReporter(bus domain.SignalBus, notifier ErrorNotifier, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{bus: bus, notifier: notifier, logger: logger}
}

// ReportError surfaces a job failure. It never fails itself; secondary
// delivery problems are logged and dropped.
func (r *Reporter) ReportError(ctx context.Context, component string, err error) {
	r.logger.ErrorContext(ctx, "pipeline job failed",
		slog.String("job", component),
		slog.String("error", err.Error()),
	)

	if r.bus != nil {
		payload, merr := json.Marshal(domain.NewErrorEvent(component, err))
		if merr != nil {
			r.logger.WarnContext(ctx, "marshal error event failed",
				slog.String("error", merr.Error()))
		} else if perr := r.bus.Publish(ctx, domain.ChannelErrors, payload); perr != nil {
			r.logger.WarnContext(ctx, "publish error event failed",
				slog.String("error", perr.Error()))
		}
	}

	if r.notifier != nil {
		r.notifier.NotifyError(ctx, component, err)
	}
}
