// Package httpapi implements the thin ingress/egress boundary: three
// routes, no auth surface (user authentication is an out-of-scope
// external collaborator; see DESIGN.md). Middleware covers request-ID
// tagging, structured request logging, and panic recovery.
package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/enterprise/riskcore/internal/errs"
	"github.com/enterprise/riskcore/internal/models"
	"github.com/enterprise/riskcore/internal/orchestrator"
	"github.com/enterprise/riskcore/internal/repositories"
	"github.com/enterprise/riskcore/internal/trust"
)

// Server wires the Orchestrator and Trust Updater behind the three
// routes.
type Server struct {
	orchestrator *orchestrator.Orchestrator
	updater      *trust.Updater
	txns         *repositories.TransactionRepository
	log          zerolog.Logger
}

// NewServer builds an httpapi.Server.
func NewServer(
	orch *orchestrator.Orchestrator,
	updater *trust.Updater,
	txns *repositories.TransactionRepository,
	log zerolog.Logger,
) *Server {
	return &Server{orchestrator: orch, updater: updater, txns: txns, log: log.With().Str("component", "httpapi").Logger()}
}

// Router builds the gin engine with the thin route set and no auth
// middleware — user authentication is an out-of-scope external
// collaborator.
func (s *Server) Router(environment string) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(s.loggingMiddleware())

	router.GET("/healthz", s.healthzHandler)

	v1 := router.Group("/v1")
	v1.POST("/assessments", s.createAssessmentHandler)
	v1.POST("/outcomes", s.reportOutcomeHandler)

	return router
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", c.GetString("request_id")).
			Msg("request completed")
	}
}

func (s *Server) healthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

// assessmentRequest is the JSON wire shape for POST /v1/assessments.
type assessmentRequest struct {
	PayerID           string   `json:"payerId" binding:"required"`
	Amount            float64  `json:"amount" binding:"required,min=0"`
	Receiver          string   `json:"receiver" binding:"required"`
	ReceiverType      string   `json:"receiverType" binding:"required"`
	DeviceFingerprint string   `json:"deviceFingerprint" binding:"required"`
	TimestampUTC      string   `json:"timestampUtc" binding:"required"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	PaymentMode       string   `json:"paymentMode" binding:"required"`
	IdempotencyKey    string   `json:"idempotencyKey"`
}

// assessmentResponse is the JSON wire shape for the egress assessment.
type assessmentResponse struct {
	TransactionID   string   `json:"transactionId"`
	FinalScore      float64  `json:"finalScore"`
	Level           string   `json:"level"`
	Action          string   `json:"action"`
	Subscores       subscore `json:"subscores"`
	Flags           []string `json:"flags"`
	Factors         []string `json:"factors"`
	Recommendations []string `json:"recommendations"`
	ModelVersion    string   `json:"modelVersion"`
	RulesetVersion  string   `json:"rulesetVersion"`
	ProcessingMs    int64    `json:"processingMs"`
}

type subscore struct {
	Behavior float64 `json:"behavior"`
	Amount   float64 `json:"amount"`
	Receiver float64 `json:"receiver"`
	ML       float64 `json:"ml"`
}

func (s *Server) createAssessmentHandler(c *gin.Context) {
	var req assessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payerID, err := uuid.Parse(req.PayerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payerId"})
		return
	}

	timestamp, err := time.Parse(time.RFC3339, req.TimestampUTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timestampUtc, expected RFC3339"})
		return
	}

	if d := time.Since(timestamp); d > 5*time.Minute || d < -5*time.Minute {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timestampUtc must be within 5 minutes of server clock"})
		return
	}

	orchReq := orchestrator.Request{
		PayerID:           payerID,
		Amount:            req.Amount,
		Receiver:          req.Receiver,
		ReceiverType:      models.ReceiverType(req.ReceiverType),
		DeviceFingerprint: req.DeviceFingerprint,
		TimestampUTC:      timestamp,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		PaymentMode:       models.PaymentMode(req.PaymentMode),
		IdempotencyKey:    req.IdempotencyKey,
	}

	assessment, err := s.orchestrator.Assess(c.Request.Context(), orchReq)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessmentResponse{
		TransactionID: assessment.TransactionID.String(),
		FinalScore:    assessment.FinalScore,
		Level:         string(assessment.Level),
		Action:        string(assessment.Action),
		Subscores: subscore{
			Behavior: assessment.BehaviorScore,
			Amount:   assessment.AmountScore,
			Receiver: assessment.ReceiverScore,
			ML:       assessment.MLScore,
		},
		Flags:           assessment.Flags,
		Factors:         assessment.Factors,
		Recommendations: assessment.Recommendations,
		ModelVersion:    assessment.ModelVersion,
		RulesetVersion:  assessment.RulesetVersion,
		ProcessingMs:    assessment.ProcessingMs,
	})
}

// outcomeRequest is the JSON wire shape for POST /v1/outcomes, the
// executor's report of a payment outcome back into the core.
type outcomeRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
	Outcome       string `json:"outcome" binding:"required"`
}

func (s *Server) reportOutcomeHandler(c *gin.Context) {
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transactionId"})
		return
	}

	tx, err := s.txns.GetByID(c.Request.Context(), txID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	outcome := models.Outcome(req.Outcome)
	if err := s.updater.ApplyOutcome(c.Request.Context(), txID, tx.PayerID, tx.Receiver, outcome); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrPayerNotFound), errors.Is(err, errs.ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.log.Error().Err(err).Msg("assessment failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Errorf("%w", errs.ErrAssessmentFailed).Error()})
	}
}
