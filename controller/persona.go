package controller

import (
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/common/ctxkey"
	"github.com/qaforge/convotest/common/helper"
	"github.com/qaforge/convotest/middleware"
	"github.com/qaforge/convotest/model"
)

type personaRequest struct {
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description"`
	SystemPrompt string `json:"system_prompt"`
}

func GetPersonas(c *gin.Context) {
	personas, err := model.GetPersonasByOrg(gmw.Ctx(c), c.GetString(ctxkey.OrgId))
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    personas,
	})
}

func CreatePersona(c *gin.Context) {
	req := new(personaRequest)
	if err := c.ShouldBindJSON(req); err != nil || strings.TrimSpace(req.Name) == "" {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("persona name is required"))
		return
	}

	p := &model.Persona{
		OrgId:        c.GetString(ctxkey.OrgId),
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
	}
	if err := model.CreatePersona(gmw.Ctx(c), p); err != nil {
		helper.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    p,
	})
}
