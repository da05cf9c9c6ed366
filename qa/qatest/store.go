package qatest

import (
	"context"
	"sync"

	"github.com/Laisky/errors/v2"

	"github.com/qaforge/convotest/qa/model"
)

// Store keeps definitions and runs in memory.
type Store struct {
	mu          sync.Mutex
	Definitions map[string]*model.TestDefinition
	Personas    map[string][]string
	Created     []model.TestRun
	Updated     []model.TestRun
	UpdateErr   error
}

func NewStore() *Store {
	return &Store{
		Definitions: map[string]*model.TestDefinition{},
		Personas:    map[string][]string{},
	}
}

// Put registers def under def.ID and maps its PersonaIDs.
func (s *Store) Put(def *model.TestDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Definitions[def.ID] = def
	s.Personas[def.ID] = def.PersonaIDs
}

func (s *Store) GetTestDefinition(_ context.Context, testID string) (*model.TestDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.Definitions[testID]
	if !ok {
		return nil, errors.Wrapf(model.ErrConfigNotFound, "test %s", testID)
	}
	return def, nil
}

func (s *Store) GetPersonaMapping(_ context.Context, testID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Personas[testID], nil
}

func (s *Store) CreateRun(_ context.Context, run *model.TestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Created = append(s.Created, *run)
	return nil
}

func (s *Store) UpdateRun(_ context.Context, run *model.TestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	s.Updated = append(s.Updated, *run)
	return nil
}

// UpdateCount is the number of successful UpdateRun calls.
func (s *Store) UpdateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Updated)
}
