package main

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/Laisky/errors/v2"

	"github.com/qaforge/convotest/qa/model"
)

// definitionFile is the on-disk format: a test definition plus the system
// prompt of each persona it names.
type definitionFile struct {
	model.TestDefinition
	PersonaPrompts map[string]string `json:"personaPrompts,omitempty"`
}

func loadDefinitionFile(path string) (*definitionFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read definition %s", path)
	}
	f := new(definitionFile)
	if err = json.Unmarshal(raw, f); err != nil {
		return nil, errors.Wrapf(err, "parse definition %s", path)
	}
	if f.ID == "" {
		f.ID = "local"
	}
	if len(f.PersonaIDs) == 0 {
		for id := range f.PersonaPrompts {
			f.PersonaIDs = append(f.PersonaIDs, id)
		}
		sort.Strings(f.PersonaIDs)
	}
	return f, nil
}

// fileStore serves one definition and keeps the run in memory.
type fileStore struct {
	def *definitionFile

	mu  sync.Mutex
	run *model.TestRun
}

func (s *fileStore) GetTestDefinition(_ context.Context, testID string) (*model.TestDefinition, error) {
	if testID != s.def.ID {
		return nil, errors.Wrapf(model.ErrConfigNotFound, "test %s", testID)
	}
	return &s.def.TestDefinition, nil
}

func (s *fileStore) GetPersonaMapping(_ context.Context, _ string) ([]string, error) {
	return s.def.PersonaIDs, nil
}

func (s *fileStore) CreateRun(_ context.Context, run *model.TestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.run = &cp
	return nil
}

func (s *fileStore) UpdateRun(_ context.Context, run *model.TestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.run = &cp
	return nil
}

func (s *fileStore) GetPersonaSystemPrompt(_ context.Context, personaID string) (string, error) {
	return s.def.PersonaPrompts[personaID], nil
}
