package lifecycle

import "context"

// Shutdown phases, executed in ascending order.
const (
	PhaseIngestion = iota
	PhaseHTTP
	PhaseJobs
	PhaseStores
)

// Hook describes a named shutdown hook.
type Hook struct {
	Name  string
	Phase int
	Fn    func(ctx context.Context) error
}
