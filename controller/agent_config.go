package controller

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"github.com/qaforge/convotest/common/ctxkey"
	"github.com/qaforge/convotest/common/helper"
	"github.com/qaforge/convotest/middleware"
	"github.com/qaforge/convotest/model"
	qamodel "github.com/qaforge/convotest/qa/model"
)

type testCaseRequest struct {
	Id             string `json:"id"`
	Scenario       string `json:"scenario" binding:"required"`
	ExpectedOutput string `json:"expected_output"`
}

// agentConfigRequest is the body of create and update. On update, empty
// fields keep their stored value and a present test_cases list replaces
// the stored cases.
type agentConfigRequest struct {
	Name         string            `json:"name"`
	Endpoint     string            `json:"endpoint" binding:"omitempty,url"`
	Headers      map[string]string `json:"headers"`
	InputFormat  map[string]any    `json:"input_format"`
	LatestOutput map[string]any    `json:"latest_output"`
	Rules        []qamodel.Rule    `json:"rules"`
	TestCases    []testCaseRequest `json:"test_cases" binding:"omitempty,dive"`
	PersonaIds   []string          `json:"persona_ids"`
}

type agentConfigResponse struct {
	*model.AgentConfig
	PersonaIds []string `json:"persona_ids"`
}

func GetAgentConfigs(c *gin.Context) {
	cfgs, err := model.GetAgentConfigsByOrg(gmw.Ctx(c), c.GetString(ctxkey.OrgId))
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    cfgs,
	})
}

// loadOwnedAgentConfig aborts the request and returns nil unless the config
// exists and belongs to the caller's organization.
func loadOwnedAgentConfig(c *gin.Context, id string) *model.AgentConfig {
	cfg, err := model.GetAgentConfigById(gmw.Ctx(c), id)
	if err != nil {
		middleware.AbortWithMappedError(c, err)
		return nil
	}
	if cfg.OrgId != c.GetString(ctxkey.OrgId) {
		middleware.AbortWithMappedError(c, errors.Wrapf(qamodel.ErrAuthorization, "agent config %s", id))
		return nil
	}
	return cfg
}

func GetAgentConfig(c *gin.Context) {
	cfg := loadOwnedAgentConfig(c, c.Param("id"))
	if cfg == nil {
		return
	}
	mapping, err := model.GetPersonaMapping(gmw.Ctx(c), cfg.Id)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    agentConfigResponse{AgentConfig: cfg, PersonaIds: mapping.PersonaIds},
	})
}

func CreateAgentConfig(c *gin.Context) {
	req := new(agentConfigRequest)
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.Wrap(err, "invalid agent config"))
		return
	}
	if req.Endpoint == "" {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("endpoint is required"))
		return
	}

	cfg := new(model.AgentConfig)
	if err := copier.Copy(cfg, req); err != nil {
		helper.RespondError(c, err)
		return
	}
	cfg.OrgId = c.GetString(ctxkey.OrgId)
	cfg.CreatedBy = c.GetString(ctxkey.ProfileId)

	ctx := gmw.Ctx(c)
	if err := model.CreateAgentConfig(ctx, cfg); err != nil {
		helper.RespondError(c, err)
		return
	}

	personaIds := req.PersonaIds
	if personaIds == nil {
		personaIds = []string{}
	}
	if err := model.SavePersonaMapping(ctx, &model.PersonaMapping{AgentId: cfg.Id, PersonaIds: personaIds}); err != nil {
		helper.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    agentConfigResponse{AgentConfig: cfg, PersonaIds: personaIds},
	})
}

func UpdateAgentConfig(c *gin.Context) {
	req := new(agentConfigRequest)
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.Wrap(err, "invalid agent config"))
		return
	}

	cfg := loadOwnedAgentConfig(c, c.Param("id"))
	if cfg == nil {
		return
	}

	patch := *req
	patch.TestCases = nil
	if err := copier.CopyWithOption(cfg, &patch, copier.Option{IgnoreEmpty: true}); err != nil {
		helper.RespondError(c, err)
		return
	}

	replaceCases := req.TestCases != nil
	if replaceCases {
		cfg.TestCases = nil
		if err := copier.Copy(&cfg.TestCases, req.TestCases); err != nil {
			helper.RespondError(c, err)
			return
		}
	}

	ctx := gmw.Ctx(c)
	if err := model.UpdateAgentConfig(ctx, cfg, replaceCases); err != nil {
		helper.RespondError(c, err)
		return
	}

	mapping, err := model.GetPersonaMapping(ctx, cfg.Id)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	if req.PersonaIds != nil {
		mapping.PersonaIds = req.PersonaIds
		if err = model.SavePersonaMapping(ctx, mapping); err != nil {
			helper.RespondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    agentConfigResponse{AgentConfig: cfg, PersonaIds: mapping.PersonaIds},
	})
}
