package sqlstore

import "github.com/goliatone/go-hookqueue/core"

var (
	_ core.QueueStore  = (*WorkItemStore)(nil)
	_ core.MarkerStore = (*MarkerStore)(nil)
	_ core.MetricStore = (*MetricStore)(nil)
	_ core.UnitOfWork  = (*RepositoryFactory)(nil)
)
