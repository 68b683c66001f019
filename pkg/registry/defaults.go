package registry

import (
	"context"

	"github.com/dukex/flowrun/pkg/executors/gohighlevel"
	"github.com/dukex/flowrun/pkg/executors/httprequest"
	logexecutor "github.com/dukex/flowrun/pkg/executors/log"
	"github.com/dukex/flowrun/pkg/executors/schedule"
	"github.com/dukex/flowrun/pkg/executors/transform"
	"github.com/dukex/flowrun/pkg/executors/webhook"
	"github.com/dukex/flowrun/pkg/protocol"
)

// RegisterDefaultExecutors registers all built-in executor factories. GoHighLevel
// executors talk through ghl, which is usually a MockClient outside production.
func (r *Registry) RegisterDefaultExecutors(ctx context.Context, ghl gohighlevel.Client) error {
	factories := []protocol.ExecutorFactory{
		// Triggers
		webhook.NewTriggerExecutorFactory(),
		schedule.NewTriggerExecutorFactory(),

		// GoHighLevel
		gohighlevel.NewSendSMSExecutorFactory(ghl),
		gohighlevel.NewCreateContactExecutorFactory(ghl),
		gohighlevel.NewFallbackExecutorFactory(),

		// Utilities
		transform.NewExecutorFactory(),
		httprequest.NewExecutorFactory(),
		logexecutor.NewExecutorFactory(),
	}

	for _, factory := range factories {
		if err := r.RegisterFactory(ctx, factory); err != nil {
			return err
		}
	}

	return nil
}
