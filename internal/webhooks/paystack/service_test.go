package paystackwebhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/bioshop-backend/internal/subscriptions"
	"github.com/angelmondragon/bioshop-backend/pkg/db/models"
	"github.com/angelmondragon/bioshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bioshop-backend/pkg/errors"
	"github.com/angelmondragon/bioshop-backend/pkg/outbox"
	"github.com/angelmondragon/bioshop-backend/pkg/paystack"
)

type memoryStore struct {
	mu     sync.Mutex
	keys   map[string]struct{}
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]struct{}{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "bioshop:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

type txRunner struct{ db *gorm.DB }

func (r txRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type noopProvider struct{}

func (noopProvider) InitializeTransaction(context.Context, paystack.InitializeTransactionRequest) (*paystack.InitializeTransactionResult, error) {
	return nil, errors.New("not used")
}

type fixture struct {
	db      *gorm.DB
	store   *memoryStore
	subs    subscriptions.Service
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Subscription{}, &models.OutboxEvent{}, &models.WebhookEvent{}))

	subs, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:              subscriptions.NewRepository(db),
		TransactionRunner: txRunner{db: db},
		Outbox:            outbox.NewService(outbox.NewRepository(db), nil),
		Provider:          noopProvider{},
		PlanCode:          "PLN_kdq1b5mhyl6bnrb",
		AmountMinor:       200000,
	})
	require.NoError(t, err)

	store := newMemoryStore()
	guard, err := NewReplayGuard(store, time.Hour)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Subscriptions: subs,
		Audit:         NewAuditRepository(db),
		Guard:         guard,
	})
	require.NoError(t, err)
	return &fixture{db: db, store: store, subs: subs, service: svc}
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) audits(t *testing.T) []models.WebhookEvent {
	t.Helper()
	var rows []models.WebhookEvent
	require.NoError(t, f.db.Order("received_at ASC").Find(&rows).Error)
	return rows
}

const activationBody = `{"event":"charge.success","data":{"customer":{"customer_code":"CUS_1"},"metadata":{"profile_id":"profile-1"},"subscription":{"subscription_code":"SUB_1"}}}`

func TestHandleActivationCreatesActiveRow(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.HandleEvent(context.Background(), []byte(activationBody))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, result.Outcome)

	row, err := f.subs.Get(context.Background(), "profile-1")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, row.Status)
	assert.Equal(t, "CUS_1", row.CustomerCode)
	assert.Equal(t, "PLN_kdq1b5mhyl6bnrb", row.PlanCode)
	assert.Nil(t, row.NextPaymentDate)

	audits := f.audits(t)
	require.Len(t, audits, 1)
	assert.Equal(t, enums.WebhookOutcomeApplied, audits[0].Outcome)
	require.NotNil(t, audits[0].ProfileID)
	assert.Equal(t, "profile-1", *audits[0].ProfileID)
	assert.Equal(t, PayloadHash([]byte(activationBody)), audits[0].PayloadHash)
}

func TestHandleReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.HandleEvent(ctx, []byte(activationBody))
	require.NoError(t, err)
	first, err := f.subs.Get(ctx, "profile-1")
	require.NoError(t, err)

	result, err := f.service.HandleEvent(ctx, []byte(activationBody))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeDuplicate, result.Outcome)

	second, err := f.subs.Get(ctx, "profile-1")
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, int64(1), f.count(t, &models.Subscription{}))
	assert.Equal(t, int64(1), f.count(t, &models.OutboxEvent{}))
}

func TestHandleReplayConvergesWithoutGuard(t *testing.T) {
	f := newFixture(t)
	f.store.setErr = errors.New("redis down")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := f.service.HandleEvent(ctx, []byte(activationBody))
		require.NoError(t, err)
		assert.Equal(t, enums.WebhookOutcomeApplied, result.Outcome)
	}
	row, err := f.subs.Get(ctx, "profile-1")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, row.Status)
	assert.Equal(t, int64(1), f.count(t, &models.Subscription{}))
}

func TestHandleActivationWithoutProfileIsSkipped(t *testing.T) {
	f := newFixture(t)
	result, err := f.service.HandleEvent(context.Background(), []byte(`{"event":"charge.success","data":{"customer":{"customer_code":"CUS_1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeSkipped, result.Outcome)
	assert.Zero(t, f.count(t, &models.Subscription{}))
}

func TestHandleDisableCancelsMatchingRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := "CUS_1"
	_, err := f.subs.Activate(ctx, subscriptions.ActivationInput{ProfileID: "profile-1", CustomerCode: &customer})
	require.NoError(t, err)

	result, err := f.service.HandleEvent(ctx, []byte(`{"event":"subscription.disable","data":{"customer":{"customer_code":"CUS_1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, result.Outcome)

	row, err := f.subs.Get(ctx, "profile-1")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCancelled, row.Status)
}

func TestHandleDisableWithoutMatchCreatesNothing(t *testing.T) {
	f := newFixture(t)
	result, err := f.service.HandleEvent(context.Background(), []byte(`{"event":"subscription.disable","data":{"customer":{"customer_code":"CUS_unknown"}}}`))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeUnmatched, result.Outcome)
	assert.Zero(t, f.count(t, &models.Subscription{}))
	assert.Zero(t, f.count(t, &models.OutboxEvent{}))
}

func TestHandleUnknownEventMutatesNothing(t *testing.T) {
	f := newFixture(t)
	result, err := f.service.HandleEvent(context.Background(), []byte(`{"event":"invoice.update","data":{"customer":{"customer_code":"CUS_1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeIgnored, result.Outcome)
	assert.Zero(t, f.count(t, &models.Subscription{}))
	assert.Zero(t, f.count(t, &models.OutboxEvent{}))

	audits := f.audits(t)
	require.Len(t, audits, 1)
	assert.Equal(t, "invoice.update", audits[0].EventType)
}

func TestHandleOddlyShapedDeliveriesAreIgnored(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{
		`{"event":"paymentrequest.success","data":{"customer":12345}}`,
		`{"event":"invoice.create","data":{"subscription_code":9}}`,
		`{"data":{}}`,
	} {
		result, err := f.service.HandleEvent(context.Background(), []byte(body))
		require.NoError(t, err, body)
		assert.Equal(t, enums.WebhookOutcomeIgnored, result.Outcome, body)
	}
	assert.Zero(t, f.count(t, &models.Subscription{}))
	assert.Zero(t, f.count(t, &models.OutboxEvent{}))
	assert.Len(t, f.audits(t), 3)
}

func TestHandleActivationKeepsConfiguredPlan(t *testing.T) {
	f := newFixture(t)
	body := `{"event":"charge.success","data":{"customer":{"customer_code":"CUS_1"},"metadata":{"profile_id":"profile-1"},"plan":{"plan_code":"PLN_other"}}}`

	result, err := f.service.HandleEvent(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, result.Outcome)

	row, err := f.subs.Get(context.Background(), "profile-1")
	require.NoError(t, err)
	assert.Equal(t, "PLN_kdq1b5mhyl6bnrb", row.PlanCode)
	assert.Equal(t, enums.SubscriptionStatusActive, row.Status)
}

func TestHandleInvalidBody(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.HandleEvent(context.Background(), []byte(`{oops`))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assert.Zero(t, f.count(t, &models.WebhookEvent{}))
}

type failingWriter struct{}

func (failingWriter) Activate(context.Context, subscriptions.ActivationInput) (*models.Subscription, error) {
	return nil, errors.New("connection reset")
}

func (failingWriter) CancelByCustomerCode(context.Context, string) ([]models.Subscription, error) {
	return nil, errors.New("connection reset")
}

func TestHandleStoreFailureReleasesReplayKey(t *testing.T) {
	f := newFixture(t)
	guard, err := NewReplayGuard(f.store, time.Hour)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Subscriptions: failingWriter{},
		Audit:         NewAuditRepository(f.db),
		Guard:         guard,
	})
	require.NoError(t, err)

	result, err := svc.HandleEvent(context.Background(), []byte(activationBody))
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInternal))
	assert.Equal(t, enums.WebhookOutcomeFailed, result.Outcome)
	assert.Empty(t, f.store.keys)

	audits := f.audits(t)
	require.Len(t, audits, 1)
	require.NotNil(t, audits[0].Error)
	assert.Contains(t, *audits[0].Error, "connection reset")

	result, err = f.service.HandleEvent(context.Background(), []byte(activationBody))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, result.Outcome)
}
