package model

import (
	"context"
	"fmt"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"

	"github.com/qaforge/convotest/common"
	"github.com/qaforge/convotest/common/config"
	"github.com/qaforge/convotest/common/logger"
	"github.com/qaforge/convotest/common/random"
)

// Persona is a simulated user. SystemPrompt overrides the default tester
// prompt when set.
type Persona struct {
	Id           string `json:"id" gorm:"type:varchar(64);primaryKey"`
	OrgId        string `json:"org_id" gorm:"type:varchar(64);index"`
	Name         string `json:"name" gorm:"type:varchar(191);not null"`
	Description  string `json:"description" gorm:"type:text"`
	SystemPrompt string `json:"system_prompt" gorm:"type:text"`
	CreatedAt    int64  `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt    int64  `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

var personaPromptCache = gocache.New(config.PersonaCacheTTL, 2*config.PersonaCacheTTL)

func personaCacheKey(id string) string {
	return fmt.Sprintf("persona:prompt:%s", id)
}

func GetPersonaById(ctx context.Context, id string) (*Persona, error) {
	var p Persona
	if err := DB.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err, "persona", id)
	}
	return &p, nil
}

func GetPersonasByOrg(ctx context.Context, orgId string) ([]*Persona, error) {
	var personas []*Persona
	err := DB.WithContext(ctx).Where("org_id = ?", orgId).Order("name asc").Find(&personas).Error
	return personas, errors.Wrap(err, "list personas")
}

func CreatePersona(ctx context.Context, p *Persona) error {
	if p.Id == "" {
		p.Id = random.NewID()
	}
	if err := DB.WithContext(ctx).Create(p).Error; err != nil {
		return errors.Wrap(err, "create persona")
	}
	invalidatePersonaPrompt(ctx, p.Id)
	return nil
}

// CacheGetPersonaSystemPrompt reads through the process cache, then Redis,
// then the database. An empty prompt is a valid cached value.
func CacheGetPersonaSystemPrompt(ctx context.Context, id string) (string, error) {
	key := personaCacheKey(id)
	if v, ok := personaPromptCache.Get(key); ok {
		return v.(string), nil
	}

	lg := logger.FromContext(ctx)
	if common.IsRedisEnabled() {
		prompt, err := common.RedisGet(ctx, key)
		switch {
		case err == nil:
			personaPromptCache.SetDefault(key, prompt)
			return prompt, nil
		case errors.Is(err, redis.Nil):
		default:
			lg.Warn("redis get persona prompt", zap.String("persona_id", id), zap.Error(err))
		}
	}

	p, err := GetPersonaById(ctx, id)
	if err != nil {
		return "", err
	}

	personaPromptCache.SetDefault(key, p.SystemPrompt)
	if common.IsRedisEnabled() {
		if err := common.RedisSet(ctx, key, p.SystemPrompt, config.PersonaCacheTTL); err != nil {
			lg.Warn("redis set persona prompt", zap.String("persona_id", id), zap.Error(err))
		}
	}
	return p.SystemPrompt, nil
}

func invalidatePersonaPrompt(ctx context.Context, id string) {
	key := personaCacheKey(id)
	personaPromptCache.Delete(key)
	if common.IsRedisEnabled() {
		if err := common.RedisDel(ctx, key); err != nil {
			logger.FromContext(ctx).Warn("redis del persona prompt", zap.String("persona_id", id), zap.Error(err))
		}
	}
}
