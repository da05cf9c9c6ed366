package runner

import (
	"context"

	"github.com/qaforge/convotest/qa/model"
)

// Store is the record store the coordinator reads definitions from and
// persists runs to. Lookups of missing records return an error wrapping
// model.ErrConfigNotFound.
type Store interface {
	GetTestDefinition(ctx context.Context, testID string) (*model.TestDefinition, error)
	// GetPersonaMapping returns the persona ids selected for testID, in run order.
	GetPersonaMapping(ctx context.Context, testID string) ([]string, error)
	CreateRun(ctx context.Context, run *model.TestRun) error
	UpdateRun(ctx context.Context, run *model.TestRun) error
}

// Observer receives run and pair outcomes, typically for metrics.
type Observer interface {
	ObservePair(personaID string, passed bool, errored bool, elapsedMs int64)
	ObserveRun(status model.RunStatus, total int)
}

type nopObserver struct{}

func (nopObserver) ObservePair(string, bool, bool, int64) {}
func (nopObserver) ObserveRun(model.RunStatus, int)      {}
