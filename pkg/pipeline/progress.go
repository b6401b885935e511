package pipeline

import (
	"log/slog"

	"github.com/civitas-labs/agora/pkg/models"
)

// Progress is emitted on each stage transition.
type Progress struct {
	CurrentStage    models.StageName `json:"currentStage"`
	TotalStages     int              `json:"totalStages"`
	CompletedStages int              `json:"completedStages"`
	PercentComplete int              `json:"percentComplete"`
}

// Observer receives progress notifications. Implementations must not block:
// the runner calls observers inline between stages.
type Observer interface {
	OnProgress(p Progress)
}

// LogObserver logs progress transitions.
type LogObserver struct{}

// OnProgress implements Observer.
func (LogObserver) OnProgress(p Progress) {
	slog.Info("Pipeline progress",
		"current_stage", p.CurrentStage,
		"completed_stages", p.CompletedStages,
		"total_stages", p.TotalStages,
		"percent_complete", p.PercentComplete,
	)
}

// ChannelObserver delivers progress on a bounded channel, dropping the oldest
// entry when full so a slow consumer never blocks the runner.
type ChannelObserver struct {
	ch chan Progress
}

// NewChannelObserver creates a channel observer with the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelObserver{ch: make(chan Progress, buffer)}
}

// Updates returns the receive side.
func (o *ChannelObserver) Updates() <-chan Progress {
	return o.ch
}

// OnProgress implements Observer. Drop-oldest on a full buffer.
func (o *ChannelObserver) OnProgress(p Progress) {
	for {
		select {
		case o.ch <- p:
			return
		default:
			select {
			case <-o.ch:
			default:
			}
		}
	}
}
