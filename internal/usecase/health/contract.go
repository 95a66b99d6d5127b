package health

import "context"

// DBPinger checks cache store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// BackendChecker checks an embedding or generation backend.
type BackendChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexReporter tells whether an index is published.
type IndexReporter interface {
	Indexed() bool
}
