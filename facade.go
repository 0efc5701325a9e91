package hookqueue

import (
	"fmt"

	hqcommand "github.com/goliatone/go-hookqueue/command"
	hqquery "github.com/goliatone/go-hookqueue/query"
)

type CommandQueryService interface {
	hqcommand.MutatingService
	hqquery.DeadLetterReader
	hqquery.DepthReader
	hqquery.SummaryReader
}

type Commands struct {
	EnqueueWebhook    *hqcommand.EnqueueWebhookCommand
	RequeueDeadLetter *hqcommand.RequeueDeadLetterCommand
	RunQueue          *hqcommand.RunQueueCommand
	PruneMarkers      *hqcommand.PruneMarkersCommand
}

type Queries struct {
	ListDeadLetters  *hqquery.ListDeadLettersQuery
	QueueDepth       *hqquery.QueueDepthQuery
	AnalyticsSummary *hqquery.AnalyticsSummaryQuery
	ListUnhandled    *hqquery.ListUnhandledQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	unhandledReader hqquery.UnhandledReader
	markers         hqcommand.MarkerMaintenanceService
}

func WithUnhandledReader(reader hqquery.UnhandledReader) FacadeOption {
	return func(options *facadeOptions) {
		options.unhandledReader = reader
	}
}

func WithMarkerMaintenance(markers hqcommand.MarkerMaintenanceService) FacadeOption {
	return func(options *facadeOptions) {
		options.markers = markers
	}
}

// NewFacade wires the commands and queries over service. Optional readers
// default to service when it implements them.
func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("hookqueue: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.unhandledReader == nil {
		cfg.unhandledReader, _ = service.(hqquery.UnhandledReader)
	}
	if cfg.markers == nil {
		cfg.markers, _ = service.(hqcommand.MarkerMaintenanceService)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		EnqueueWebhook:    hqcommand.NewEnqueueWebhookCommand(service),
		RequeueDeadLetter: hqcommand.NewRequeueDeadLetterCommand(service),
		RunQueue:          hqcommand.NewRunQueueCommand(service),
		PruneMarkers:      hqcommand.NewPruneMarkersCommand(cfg.markers),
	}
	facade.queries = Queries{
		ListDeadLetters:  hqquery.NewListDeadLettersQuery(service),
		QueueDepth:       hqquery.NewQueueDepthQuery(service),
		AnalyticsSummary: hqquery.NewAnalyticsSummaryQuery(service),
		ListUnhandled:    hqquery.NewListUnhandledQuery(cfg.unhandledReader),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
