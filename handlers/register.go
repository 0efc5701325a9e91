package handlers

import (
	"fmt"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/goliatone/go-hookqueue/processor"
)

// Registrar installs a processor's handlers on a registry.
type Registrar interface {
	Register(reg *processor.Registry) error
}

// Processors returns the processor of every queue type.
func Processors(deps Deps) map[core.QueueType]Registrar {
	return map[core.QueueType]Registrar{
		core.QueueCritical:     NewCritical(deps),
		core.QueueContacts:     NewContacts(deps),
		core.QueueAppointments: NewAppointments(deps),
		core.QueueMessages:     NewMessages(deps),
		core.QueueFinancial:    NewFinancial(deps),
		core.QueueProjects:     NewProjects(deps),
		core.QueueGeneral:      NewGeneral(deps),
	}
}

// NewRegistries builds one validated registry per queue type. Every event
// type routed to a queue must have a handler there.
func NewRegistries(deps Deps, notifier core.Notifier) (map[core.QueueType]*processor.Registry, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	registries := make(map[core.QueueType]*processor.Registry, len(core.QueueTypes()))
	for queueType, registrar := range Processors(deps) {
		reg := processor.NewRegistry(queueType).WithObserver(deps.Observer)
		reg.Notifier = notifier
		if err := registrar.Register(reg); err != nil {
			return nil, fmt.Errorf("handlers: register %s: %w", queueType, err)
		}
		required := core.EventTypesFor(queueType)
		if queueType == core.QueueGeneral {
			required = append(required, GeneralEventTypes...)
		}
		if err := reg.Validate(required...); err != nil {
			return nil, err
		}
		registries[queueType] = reg
	}
	return registries, nil
}
