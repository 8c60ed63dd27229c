package handler

import (
	"log/slog"
	"net/http"

	"go-stepflow/internal/api/dto"
	"go-stepflow/internal/domain"
	"go-stepflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StepHandler exposes the step catalog to operators.
type StepHandler struct {
	catalog service.StepCatalog
	logger  *slog.Logger
}

func NewStepHandler(catalog service.StepCatalog, logger *slog.Logger) *StepHandler {
	return &StepHandler{catalog: catalog, logger: logger.With("component", "http")}
}

func (h *StepHandler) List(c *gin.Context) {
	list := h.catalog.ListSteps
	if c.Query("active") == "true" {
		list = h.catalog.ListActiveSteps
	}

	steps, err := list(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, steps)
}

func (h *StepHandler) Define(c *gin.Context) {
	var req dto.DefineStepRequest
	if err := bindStrict(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}

	kind := domain.ResultKind(req.ResultKind)
	if kind == "" {
		kind = domain.ResultGeneric
	}
	step, err := h.catalog.DefineStep(c.Request.Context(), service.StepInput{
		Name:           req.Name,
		Description:    req.Description,
		PromptTemplate: req.PromptTemplate,
		Order:          *req.Order,
		ResultKind:     kind,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, step)
}

func (h *StepHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, h.logger, invalidID(c.Param("id")))
		return
	}
	var req dto.UpdateStepDefinitionRequest
	if err := bindStrict(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}

	changes := service.StepChanges{
		Description:    req.Description,
		PromptTemplate: req.PromptTemplate,
		Order:          req.Order,
		IsActive:       req.IsActive,
	}
	if req.ResultKind != nil {
		kind := domain.ResultKind(*req.ResultKind)
		changes.ResultKind = &kind
	}

	step, err := h.catalog.UpdateStep(c.Request.Context(), id, changes)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, step)
}
