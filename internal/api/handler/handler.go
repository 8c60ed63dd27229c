package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go-stepflow/internal/api/dto"
	"go-stepflow/internal/domain"
	"go-stepflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
)

type WorkflowHandler struct {
	service service.WorkflowService
	logger  *slog.Logger
}

func NewWorkflowHandler(svc service.WorkflowService, logger *slog.Logger) *WorkflowHandler {
	return &WorkflowHandler{service: svc, logger: logger.With("component", "http")}
}

func (h *WorkflowHandler) Initiate(c *gin.Context) {
	var req dto.InitiateRequest
	if err := bindStrict(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	status, err := h.service.Initiate(c.Request.Context(), req.ProjectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, status)
}

func (h *WorkflowHandler) GetStatus(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectId")
	if !ok {
		return
	}

	status, err := h.service.GetStatus(c.Request.Context(), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// UpdateStep serves the generic agent callback.
func (h *WorkflowHandler) UpdateStep(c *gin.Context) {
	var req dto.UpdateStepRequest
	if err := bindStrict(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	out, err := h.service.ReportStepStatus(c.Request.Context(), req.ProjectID, req.StepID, domain.ProgressStatus(req.Status), req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type resultRequest interface {
	ToResult() domain.StepResult
}

// recordResult builds the handler of a typed result callback. The step is
// the one of the project whose result kind matches T.
func recordResult[T resultRequest](h *WorkflowHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, ok := h.uuidParam(c, "projectId")
		if !ok {
			return
		}
		var req T
		if err := bindStrict(c, &req); err != nil {
			h.fail(c, err)
			return
		}

		out, err := h.service.RecordResultByKind(c.Request.Context(), projectID, req.ToResult())
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func (h *WorkflowHandler) Reformulate(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectId")
	if !ok {
		return
	}
	var req dto.ReformulationRequest
	if err := bindStrict(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	msg, err := h.service.ReformulateFinalMessage(c.Request.Context(), projectID, req.ReformulatedText)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *WorkflowHandler) GetResults(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectId")
	if !ok {
		return
	}

	results, err := h.service.GetResults(c.Request.Context(), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *WorkflowHandler) RetryStep(c *gin.Context) {
	var req dto.RetryStepRequest
	if err := bindStrict(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	progress, err := h.service.RetryStep(c.Request.Context(), req.ProjectID, req.StepID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *WorkflowHandler) DeleteProject(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectId")
	if !ok {
		return
	}

	if err := h.service.DeleteProject(c.Request.Context(), projectID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *WorkflowHandler) SetFindingStatus(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.FindingStatusRequest
	if err := bindStrict(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	kind := domain.FindingKind(c.Param("kind"))
	if err := h.service.SetFindingStatus(c.Request.Context(), kind, id, domain.FindingStatus(req.Status)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "kind": kind, "status": req.Status})
}

func (h *WorkflowHandler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.fail(c, invalidID(c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}

func invalidID(raw string) error {
	return fmt.Errorf("%q is not a uuid: %w", raw, domain.ErrValidation)
}

func (h *WorkflowHandler) fail(c *gin.Context, err error) {
	writeError(c, h.logger, err)
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrAlreadyInitiated):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUpstreamAgent):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// bindStrict decodes the JSON body rejecting unknown fields, then runs the
// binding rules of obj.
func bindStrict(c *gin.Context, obj any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(obj); err != nil {
		return fmt.Errorf("invalid body: %v: %w", err, domain.ErrValidation)
	}
	if err := binding.Validator.ValidateStruct(obj); err != nil {
		return fmt.Errorf("invalid body: %v: %w", err, domain.ErrValidation)
	}
	return nil
}
