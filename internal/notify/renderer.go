package notify

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/linage/linapush/internal/models"
)

// LogRenderer writes notifications to a logger. It stands in for a platform notification service.
type LogRenderer struct {
	logger *log.Logger
}

// NewLogRenderer creates a [LogRenderer].
func NewLogRenderer(logger *log.Logger) *LogRenderer {
	return &LogRenderer{logger: logger.WithPrefix("notification")}
}

func (r *LogRenderer) CreateChannels(_ context.Context, channels []models.Channel) error {
	for _, ch := range channels {
		r.logger.Debug("channel registered", "id", ch.ID, "importance", ch.Importance)
	}
	return nil
}

func (r *LogRenderer) Render(_ context.Context, n models.Notification) error {
	kv := []any{"type", n.Type, "channel", n.Channel, "title", n.Title, "body", n.Body, "link", n.DeepLink}
	if n.Count > 1 {
		kv = append(kv, "count", n.Count)
	}
	if n.ImageURL != "" {
		kv = append(kv, "image", n.ImageURL, "quality", n.ImageQuality)
	}
	r.logger.Info("notify", kv...)
	return nil
}
