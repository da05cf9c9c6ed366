package model

import (
	"context"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/qaforge/convotest/common/random"
	qamodel "github.com/qaforge/convotest/qa/model"
)

// AgentConfig is a stored test target: where the agent lives, how to talk to
// it and what its answers must look like.
type AgentConfig struct {
	Id          string            `json:"id" gorm:"type:varchar(64);primaryKey"`
	OrgId       string            `json:"org_id" gorm:"type:varchar(64);index"`
	Name        string            `json:"name" gorm:"type:varchar(191)"`
	Endpoint    string            `json:"endpoint" gorm:"type:text;not null"`
	Headers     map[string]string `json:"headers" gorm:"type:text;serializer:json"`
	InputFormat map[string]any    `json:"input_format" gorm:"type:text;serializer:json"`
	// LatestOutput is an example response; its shape is the expected output format.
	LatestOutput map[string]any `json:"latest_output" gorm:"type:text;serializer:json"`
	Rules        []qamodel.Rule `json:"rules" gorm:"type:text;serializer:json"`
	CreatedBy    string         `json:"created_by" gorm:"type:varchar(64);index"`
	CreatedAt    int64          `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt    int64          `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`

	TestCases []TestCase `json:"test_cases,omitempty" gorm:"foreignKey:AgentId;constraint:OnDelete:CASCADE"`
}

// TestCase is one scenario of an agent config.
type TestCase struct {
	Id             string `json:"id" gorm:"type:varchar(64);primaryKey"`
	AgentId        string `json:"agent_id" gorm:"type:varchar(64);index;not null"`
	Scenario       string `json:"scenario" gorm:"type:text;not null"`
	ExpectedOutput string `json:"expected_output" gorm:"type:text"`
	Position       int    `json:"position" gorm:"default:0"`
}

// PersonaMapping selects the personas that run against an agent config.
type PersonaMapping struct {
	AgentId    string   `json:"agent_id" gorm:"type:varchar(64);primaryKey"`
	PersonaIds []string `json:"persona_ids" gorm:"type:text;serializer:json"`
	UpdatedAt  int64    `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

// Definition converts the stored config into an engine definition.
// PersonaIDs are filled separately from the persona mapping.
func (a *AgentConfig) Definition() *qamodel.TestDefinition {
	def := &qamodel.TestDefinition{
		ID:           a.Id,
		Name:         a.Name,
		EndpointURL:  a.Endpoint,
		Headers:      a.Headers,
		InputFormat:  a.InputFormat,
		OutputFormat: a.LatestOutput,
		Rules:        append([]qamodel.Rule(nil), a.Rules...),
		OrgID:        a.OrgId,
	}
	for _, tc := range a.TestCases {
		def.Scenarios = append(def.Scenarios, qamodel.Scenario{
			ID:             tc.Id,
			Scenario:       tc.Scenario,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}
	return def
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(qamodel.ErrConfigNotFound, "%s %s", what, id)
	}
	return errors.Wrapf(err, "get %s %s", what, id)
}

// GetAgentConfigById loads the config with its test cases in position order.
func GetAgentConfigById(ctx context.Context, id string) (*AgentConfig, error) {
	var cfg AgentConfig
	err := DB.WithContext(ctx).
		Preload("TestCases", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc")
		}).
		Where("id = ?", id).
		First(&cfg).Error
	if err != nil {
		return nil, notFound(err, "agent config", id)
	}
	return &cfg, nil
}

// GetAgentConfigsByOrg lists configs without their test cases.
func GetAgentConfigsByOrg(ctx context.Context, orgId string) ([]*AgentConfig, error) {
	var cfgs []*AgentConfig
	err := DB.WithContext(ctx).
		Where("org_id = ?", orgId).
		Order("created_at desc").
		Find(&cfgs).Error
	return cfgs, errors.Wrap(err, "list agent configs")
}

// CreateAgentConfig inserts the config and its test cases in one transaction.
func CreateAgentConfig(ctx context.Context, cfg *AgentConfig) error {
	if cfg.Id == "" {
		cfg.Id = random.NewID()
	}
	for i := range cfg.TestCases {
		if cfg.TestCases[i].Id == "" {
			cfg.TestCases[i].Id = random.NewID()
		}
		cfg.TestCases[i].AgentId = cfg.Id
		cfg.TestCases[i].Position = i
	}
	return errors.Wrap(DB.WithContext(ctx).Create(cfg).Error, "create agent config")
}

// UpdateAgentConfig saves cfg. When replaceCases is set the stored test
// cases are replaced by cfg.TestCases.
func UpdateAgentConfig(ctx context.Context, cfg *AgentConfig, replaceCases bool) error {
	return withBusyRetry(ctx, "update agent config", func() error {
		return DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit("TestCases").Save(cfg).Error; err != nil {
				return errors.Wrap(err, "save agent config")
			}
			if !replaceCases {
				return nil
			}
			if err := tx.Where("agent_id = ?", cfg.Id).Delete(&TestCase{}).Error; err != nil {
				return errors.Wrap(err, "delete test cases")
			}
			for i := range cfg.TestCases {
				tc := &cfg.TestCases[i]
				if tc.Id == "" {
					tc.Id = random.NewID()
				}
				tc.AgentId = cfg.Id
				tc.Position = i
			}
			if len(cfg.TestCases) == 0 {
				return nil
			}
			return errors.Wrap(tx.Create(&cfg.TestCases).Error, "create test cases")
		})
	})
}

// GetPersonaMapping returns an empty mapping when none was stored.
func GetPersonaMapping(ctx context.Context, agentId string) (*PersonaMapping, error) {
	var m PersonaMapping
	err := DB.WithContext(ctx).Where("agent_id = ?", agentId).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &PersonaMapping{AgentId: agentId, PersonaIds: []string{}}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get persona mapping %s", agentId)
	}
	return &m, nil
}

func SavePersonaMapping(ctx context.Context, m *PersonaMapping) error {
	return withBusyRetry(ctx, "save persona mapping", func() error {
		return errors.Wrap(DB.WithContext(ctx).Save(m).Error, "save persona mapping")
	})
}
