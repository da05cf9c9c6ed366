package model

import (
	"context"

	"github.com/qaforge/convotest/qa/meta"
	qamodel "github.com/qaforge/convotest/qa/model"
	"github.com/qaforge/convotest/qa/runner"
)

var (
	_ runner.Store       = (*Store)(nil)
	_ meta.PersonaLookup = (*Store)(nil)
)

// Store adapts the package-level repository functions to the engine's
// collaborator interfaces.
type Store struct{}

func NewStore() *Store { return &Store{} }

func (*Store) GetTestDefinition(ctx context.Context, testID string) (*qamodel.TestDefinition, error) {
	cfg, err := GetAgentConfigById(ctx, testID)
	if err != nil {
		return nil, err
	}
	return cfg.Definition(), nil
}

func (*Store) GetPersonaMapping(ctx context.Context, testID string) ([]string, error) {
	m, err := GetPersonaMapping(ctx, testID)
	if err != nil {
		return nil, err
	}
	return m.PersonaIds, nil
}

func (*Store) CreateRun(ctx context.Context, run *qamodel.TestRun) error {
	return CreateTestRun(ctx, run)
}

func (*Store) UpdateRun(ctx context.Context, run *qamodel.TestRun) error {
	return UpdateTestRun(ctx, run)
}

func (*Store) GetPersonaSystemPrompt(ctx context.Context, personaID string) (string, error) {
	return CacheGetPersonaSystemPrompt(ctx, personaID)
}
