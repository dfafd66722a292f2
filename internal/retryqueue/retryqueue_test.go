package retryqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/enterprise/riskcore/internal/models"
)

func TestEnvelopeToRiskEvent(t *testing.T) {
	txID := uuid.New()
	payerID := uuid.New()
	assessedAt := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	env := Envelope{
		TransactionID:  txID,
		PayerID:        payerID,
		Flags:          []string{"VELOCITY_SPIKE"},
		RuleScore:      0.4,
		MLScore:        0.2,
		FinalScore:     0.3,
		Action:         models.ActionWarn,
		ModelVersion:   "fallback-v1",
		RulesetVersion: "RULESET_V1",
		AssessedAt:     assessedAt,
	}

	event := env.ToRiskEvent()

	if event.ID == uuid.Nil {
		t.Fatal("expected a freshly generated risk event ID")
	}
	if event.TransactionID != txID {
		t.Fatalf("expected transaction id %v, got %v", txID, event.TransactionID)
	}
	if event.PayerID != payerID {
		t.Fatalf("expected payer id %v, got %v", payerID, event.PayerID)
	}
	if event.RuleScore != 0.4 || event.MLScore != 0.2 || event.FinalScore != 0.3 {
		t.Fatalf("expected scores to carry through, got %+v", event)
	}
	if event.Action != models.ActionWarn {
		t.Fatalf("expected action WARN, got %v", event.Action)
	}
	if !event.AssessedAt.Equal(assessedAt) {
		t.Fatalf("expected assessed-at to carry through, got %v", event.AssessedAt)
	}
}

type fakeRiskEventStore struct {
	created []*models.RiskEvent
	failN   int
}

func (f *fakeRiskEventStore) CreateIdempotent(ctx context.Context, event *models.RiskEvent) error {
	if f.failN > 0 {
		f.failN--
		return errors.New("simulated store failure")
	}
	f.created = append(f.created, event)
	return nil
}

func TestProcessMessagePersistsValidEnvelope(t *testing.T) {
	store := &fakeRiskEventStore{}
	h := &consumerGroupHandler{store: store, log: zerolog.Nop()}

	env := Envelope{TransactionID: uuid.New(), PayerID: uuid.New()}
	payload, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	h.processMessage(context.Background(), &sarama.ConsumerMessage{Value: payload})

	if len(store.created) != 1 {
		t.Fatalf("expected one persisted risk event, got %d", len(store.created))
	}
	if store.created[0].TransactionID != env.TransactionID {
		t.Fatalf("expected transaction id %v, got %v", env.TransactionID, store.created[0].TransactionID)
	}
}

func TestProcessMessageSwallowsMalformedPayload(t *testing.T) {
	store := &fakeRiskEventStore{}
	h := &consumerGroupHandler{store: store, log: zerolog.Nop()}

	h.processMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte("not json")})

	if len(store.created) != 0 {
		t.Fatal("expected malformed payload to be dropped, not persisted")
	}
}

func TestProcessMessageLeavesStoreFailureForNextPoll(t *testing.T) {
	store := &fakeRiskEventStore{failN: 1}
	h := &consumerGroupHandler{store: store, log: zerolog.Nop()}

	env := Envelope{TransactionID: uuid.New(), PayerID: uuid.New()}
	payload, _ := json.Marshal(env)

	h.processMessage(context.Background(), &sarama.ConsumerMessage{Value: payload})

	if len(store.created) != 0 {
		t.Fatal("expected the failed attempt to not record a persisted event")
	}
}
