package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"go-stepflow/internal/api/dto"
	"go-stepflow/internal/logging"

	"github.com/gin-gonic/gin"
)

const operatorTokenHeader = "X-Operator-Token"

type RouterOptions struct {
	// OperatorToken guards operator routes; empty leaves them open.
	OperatorToken string
	Metrics       http.Handler
	// Health reports whether the store is reachable.
	Health func(ctx context.Context) error
	Logger *slog.Logger
}

func NewRouter(workflow *WorkflowHandler, steps *StepHandler, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(opts.Logger))

	router.GET("/healthz", health(opts.Health))
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	api := router.Group("/api/v1")
	operator := OperatorAuth(opts.OperatorToken)

	wf := api.Group("/workflow")
	{
		wf.POST("/initiate", workflow.Initiate)
		wf.GET("/status/:projectId", workflow.GetStatus)
		wf.POST("/update-step", workflow.UpdateStep)

		wf.POST("/analysis-macro/:projectId", recordResult[dto.MacroAnalysisRequest](workflow))
		wf.POST("/consolidated-data/:projectId", recordResult[dto.ConsolidatedDataRequest](workflow))
		wf.POST("/reputation-analysis/:projectId", recordResult[dto.ReputationAnalysisRequest](workflow))
		wf.POST("/missing-documents/:projectId", recordResult[dto.MissingDocumentsRequest](workflow))
		wf.POST("/strengths-and-weaknesses/:projectId", recordResult[dto.StrengthsWeaknessesRequest](workflow))
		wf.POST("/final-message/:projectId", recordResult[dto.FinalMessageRequest](workflow))
		wf.POST("/final-message/:projectId/reformulation", workflow.Reformulate)

		wf.GET("/results/:projectId", workflow.GetResults)

		wf.POST("/retry-step", operator, workflow.RetryStep)
		wf.DELETE("/projects/:projectId", operator, workflow.DeleteProject)
		wf.PATCH("/findings/:kind/:id", operator, workflow.SetFindingStatus)
	}

	st := api.Group("/steps", operator)
	{
		st.GET("", steps.List)
		st.POST("", steps.Define)
		st.PUT("/:id", steps.Update)
	}

	return router
}

// OperatorAuth rejects requests whose X-Operator-Token does not match token.
func OperatorAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := c.GetHeader(operatorTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "operator token required"})
			return
		}
		c.Next()
	}
}

func health(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			if err := check(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{Status: "unavailable: " + err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
	}
}
