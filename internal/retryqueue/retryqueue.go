// Package retryqueue implements the durable, at-least-once retry path
// for RiskEvent persistence failures, built on a consumer-group pattern
// (IBM/sarama, round-robin rebalance strategy, retrying connect loop,
// graceful shutdown via context cancellation).
package retryqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/enterprise/riskcore/configs"
	"github.com/enterprise/riskcore/internal/models"
)

// Envelope is the durable retry payload: everything RiskEventRepository
// needs to replay the write, keyed for idempotent consumption. It
// carries the full RiskAssessment snapshot so a deferred write still
// leaves behind a row an idempotent replay can rehydrate in full.
type Envelope struct {
	TransactionID   uuid.UUID     `json:"transaction_id"`
	PayerID         uuid.UUID     `json:"payer_id"`
	Flags           []string      `json:"flags"`
	RuleScore       float64       `json:"rule_score"`
	MLScore         float64       `json:"ml_score"`
	FinalScore      float64       `json:"final_score"`
	Level           models.Level  `json:"level"`
	Action          models.Action `json:"action"`
	BehaviorScore   float64       `json:"behavior_score"`
	AmountScore     float64       `json:"amount_score"`
	ReceiverScore   float64       `json:"receiver_score"`
	Factors         []string      `json:"factors"`
	Recommendations []string      `json:"recommendations"`
	FeatureVector   models.JSONB  `json:"feature_vector"`
	ModelVersion    string        `json:"model_version"`
	RulesetVersion  string        `json:"ruleset_version"`
	ProcessingMs    int64         `json:"processing_ms"`
	AssessedAt      time.Time     `json:"assessed_at"`
}

// ToRiskEvent reconstructs the RiskEvent the consumer persists.
func (e Envelope) ToRiskEvent() *models.RiskEvent {
	return &models.RiskEvent{
		ID:              uuid.New(),
		TransactionID:   e.TransactionID,
		PayerID:         e.PayerID,
		Flags:           e.Flags,
		RuleScore:       e.RuleScore,
		MLScore:         e.MLScore,
		FinalScore:      e.FinalScore,
		Level:           e.Level,
		Action:          e.Action,
		BehaviorScore:   e.BehaviorScore,
		AmountScore:     e.AmountScore,
		ReceiverScore:   e.ReceiverScore,
		Factors:         e.Factors,
		Recommendations: e.Recommendations,
		FeatureVector:   e.FeatureVector,
		ModelVersion:    e.ModelVersion,
		RulesetVersion:  e.RulesetVersion,
		ProcessingMs:    e.ProcessingMs,
		AssessedAt:      e.AssessedAt,
	}
}

// Producer publishes RiskEvent envelopes to the retry topic when the
// Orchestrator's synchronous store write fails after an assessment has
// already been decided.
type Producer struct {
	syncProducer sarama.SyncProducer
	topic        string
	log          zerolog.Logger
}

// NewProducer creates a synchronous Kafka producer bound to the retry
// topic. Kafka's idempotent-producer mode is not enabled, so a retried
// send can publish a duplicate; the consumer's insert is idempotent on
// transactionId.
func NewProducer(cfg configs.KafkaConfig, log zerolog.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 5
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Version = sarama.V3_0_0_0

	syncProducer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, err
	}

	return &Producer{
		syncProducer: syncProducer,
		topic:        cfg.RetryTopic,
		log:          log.With().Str("component", "retryqueue.producer").Logger(),
	}, nil
}

// Close releases the underlying producer connection.
func (p *Producer) Close() error {
	return p.syncProducer.Close()
}

// Enqueue publishes a RiskEvent for deferred persistence, keyed by
// transactionId so partition affinity and consumer idempotency both line
// up on the same identifier.
func (p *Producer) Enqueue(ctx context.Context, event *models.RiskEvent) error {
	envelope := Envelope{
		TransactionID:   event.TransactionID,
		PayerID:         event.PayerID,
		Flags:           event.Flags,
		RuleScore:       event.RuleScore,
		MLScore:         event.MLScore,
		FinalScore:      event.FinalScore,
		Level:           event.Level,
		Action:          event.Action,
		BehaviorScore:   event.BehaviorScore,
		AmountScore:     event.AmountScore,
		ReceiverScore:   event.ReceiverScore,
		Factors:         event.Factors,
		Recommendations: event.Recommendations,
		FeatureVector:   event.FeatureVector,
		ModelVersion:    event.ModelVersion,
		RulesetVersion:  event.RulesetVersion,
		ProcessingMs:    event.ProcessingMs,
		AssessedAt:      event.AssessedAt,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.TransactionID.String()),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := p.syncProducer.SendMessage(msg)
	if err != nil {
		return err
	}

	p.log.Warn().
		Str("transaction_id", event.TransactionID.String()).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("risk event deferred to retry queue after store write failure")

	return nil
}

// RiskEventStore is the subset of RiskEventRepository the consumer needs,
// kept narrow so the consumer can be tested against a fake.
type RiskEventStore interface {
	CreateIdempotent(ctx context.Context, event *models.RiskEvent) error
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler with a
// standard session/claim loop.
type consumerGroupHandler struct {
	store RiskEventStore
	log   zerolog.Logger
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			h.processMessage(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *consumerGroupHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	var envelope Envelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		h.log.Error().Err(err).Msg("failed to parse retry queue envelope")
		return
	}

	if err := h.store.CreateIdempotent(ctx, envelope.ToRiskEvent()); err != nil {
		h.log.Error().Err(err).Str("transaction_id", envelope.TransactionID.String()).Msg("failed to replay deferred risk event, will retry on next poll")
		return
	}

	h.log.Info().Str("transaction_id", envelope.TransactionID.String()).Msg("deferred risk event replayed")
}

// Run connects a Kafka consumer group and drains the retry topic until
// ctx is cancelled, retrying the initial connection the way the
// teacher's kafka-worker does (bounded retry loop against a not-yet-up
// broker at startup).
func Run(ctx context.Context, cfg configs.KafkaConfig, store RiskEventStore, log zerolog.Logger) error {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Version = sarama.V3_0_0_0

	var group sarama.ConsumerGroup
	var err error
	for attempt := 0; attempt < 30; attempt++ {
		group, err = sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaCfg)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("failed to connect to retry queue broker, retrying")
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	defer group.Close()

	handler := &consumerGroupHandler{store: store, log: log.With().Str("component", "retryqueue.consumer").Logger()}

	for {
		if err := group.Consume(ctx, []string{cfg.RetryTopic}, handler); err != nil {
			log.Error().Err(err).Msg("retry queue consumer session error")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
