package distribution

import (
	"context"
	"time"

	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/metrics"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// Channel delivers one export through one transport. Implementations
// report their outcome as a ChannelResult and never panic through the
// dispatcher; a failed delivery is a result, not an error.
type Channel interface {
	Deliver(ctx context.Context, schedule *models.ExportSchedule, export *models.Export) models.ChannelResult
}

// Dispatcher fans an export out to every configured channel. Channels are
// attempted independently: one channel's failure never prevents the others
// from running, and the caller receives every channel's outcome.
type Dispatcher struct {
	local   Channel
	email   Channel
	webhook Channel
	log     logger.Logger
}

// NewDispatcher creates a distribution dispatcher
func NewDispatcher(local, email, webhook Channel, log logger.Logger) *Dispatcher {
	return &Dispatcher{local: local, email: email, webhook: webhook, log: log}
}

// Dispatch delivers the export through each configured channel in the
// config's fixed order and collects per-channel results.
func (d *Dispatcher) Dispatch(ctx context.Context, schedule *models.ExportSchedule, export *models.Export) map[string]models.ChannelResult {
	results := make(map[string]models.ChannelResult)

	for _, kind := range schedule.DistributionConfig.Channels() {
		channel := d.channelFor(kind)
		if channel == nil {
			results[kind] = models.ChannelResult{
				Status:    models.ChannelStatusFailed,
				Detail:    "channel not configured on this worker",
				Timestamp: time.Now().UTC(),
			}
			continue
		}

		result := channel.Deliver(ctx, schedule, export)
		if result.Timestamp.IsZero() {
			result.Timestamp = time.Now().UTC()
		}
		results[kind] = result
		metrics.ChannelDeliveries.WithLabelValues(kind, result.Status).Inc()

		if result.Status == models.ChannelStatusFailed {
			d.log.Error("channel delivery failed",
				"channel", kind,
				"schedule_id", schedule.ID,
				"export_id", export.ID,
				"detail", result.Detail)
		} else {
			d.log.Info("channel delivery finished",
				"channel", kind,
				"schedule_id", schedule.ID,
				"export_id", export.ID,
				"status", result.Status)
		}
	}

	return results
}

func (d *Dispatcher) channelFor(kind string) Channel {
	switch kind {
	case models.ChannelLocal:
		return d.local
	case models.ChannelEmail:
		return d.email
	case models.ChannelWebhook:
		return d.webhook
	default:
		return nil
	}
}
