package notify

import (
	"context"

	"github.com/applyflow/applyflow/internal/model"
)

// Notifier receives the application changes as they happen, so UI and notification
// layers can react without polling. Notifications are best effort.
type Notifier interface {
	StepRecorded(ctx context.Context, s model.ApplicationStep)
	ApplicationChanged(ctx context.Context, a model.Application)
}

// Noop is a Notifier that discards every notification.
const Noop = noop(0)

type noop int

var _ Notifier = Noop

func (noop) StepRecorded(context.Context, model.ApplicationStep)   {}
func (noop) ApplicationChanged(context.Context, model.Application) {}
