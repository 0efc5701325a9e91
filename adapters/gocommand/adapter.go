package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	hqcommand "github.com/goliatone/go-hookqueue/command"
	"github.com/goliatone/go-hookqueue/core"
	hqquery "github.com/goliatone/go-hookqueue/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Pipeline lists the services behind the hookqueue commands and queries.
// Nil services are skipped.
type Pipeline struct {
	Service     hqcommand.MutatingService
	Markers     hqcommand.MarkerMaintenanceService
	DeadLetters hqquery.DeadLetterReader
	Depth       hqquery.DepthReader
	Summary     hqquery.SummaryReader
	Unhandled   hqquery.UnhandledReader
}

// RegisterPipeline registers and subscribes every hookqueue command and
// query. On failure the subscriptions made so far are released.
func RegisterPipeline(adapter *RegistryAdapter, pipeline Pipeline, runnerOpts ...runner.Option) ([]commanddispatcher.Subscription, error) {
	var subs []commanddispatcher.Subscription
	add := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		return nil
	}
	steps := []func() error{}
	if pipeline.Service != nil {
		steps = append(steps,
			func() error {
				return add(RegisterAndSubscribe[hqcommand.EnqueueWebhookMessage](adapter, hqcommand.NewEnqueueWebhookCommand(pipeline.Service), runnerOpts...))
			},
			func() error {
				return add(RegisterAndSubscribe[hqcommand.RequeueDeadLetterMessage](adapter, hqcommand.NewRequeueDeadLetterCommand(pipeline.Service), runnerOpts...))
			},
			func() error {
				return add(RegisterAndSubscribe[hqcommand.RunQueueMessage](adapter, hqcommand.NewRunQueueCommand(pipeline.Service), runnerOpts...))
			},
		)
	}
	if pipeline.Markers != nil {
		steps = append(steps, func() error {
			return add(RegisterAndSubscribe[hqcommand.PruneMarkersMessage](adapter, hqcommand.NewPruneMarkersCommand(pipeline.Markers), runnerOpts...))
		})
	}
	if pipeline.DeadLetters != nil {
		steps = append(steps, func() error {
			return add(RegisterAndSubscribeQuery[hqquery.ListDeadLettersMessage, []core.WorkItem](adapter, hqquery.NewListDeadLettersQuery(pipeline.DeadLetters), runnerOpts...))
		})
	}
	if pipeline.Depth != nil {
		steps = append(steps, func() error {
			return add(RegisterAndSubscribeQuery[hqquery.QueueDepthMessage, []core.QueueDepth](adapter, hqquery.NewQueueDepthQuery(pipeline.Depth), runnerOpts...))
		})
	}
	if pipeline.Summary != nil {
		steps = append(steps, func() error {
			return add(RegisterAndSubscribeQuery[hqquery.AnalyticsSummaryMessage, core.AnalyticsSummary](adapter, hqquery.NewAnalyticsSummaryQuery(pipeline.Summary), runnerOpts...))
		})
	}
	if pipeline.Unhandled != nil {
		steps = append(steps, func() error {
			return add(RegisterAndSubscribeQuery[hqquery.ListUnhandledMessage, hqquery.UnhandledPage](adapter, hqquery.NewListUnhandledQuery(pipeline.Unhandled), runnerOpts...))
		})
	}
	for _, step := range steps {
		if err := step(); err != nil {
			Unsubscribe(subs)
			return nil, err
		}
	}
	return subs, nil
}

func Unsubscribe(subs []commanddispatcher.Subscription) {
	for _, sub := range subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}
