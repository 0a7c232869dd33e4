package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	paystackwebhook "github.com/angelmondragon/bioshop-backend/internal/webhooks/paystack"
	"github.com/angelmondragon/bioshop-backend/pkg/db/models"
	"github.com/angelmondragon/bioshop-backend/pkg/enums"
	"github.com/angelmondragon/bioshop-backend/pkg/outbox"
)

type gormTx struct{ db *gorm.DB }

func (g gormTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type nilTx struct{}

func (nilTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type rowsSpy struct {
	job  string
	rows int64
}

func (r *rowsSpy) AddRowsDeleted(job string, n int64) {
	r.job = job
	r.rows += n
}

func newRetention(t *testing.T, params RetentionJobParams) *retentionJob {
	t.Helper()
	if params.Logger == nil {
		params.Logger = testLogger()
	}
	job, err := NewRetentionJob(params)
	require.NoError(t, err)
	rj, ok := job.(*retentionJob)
	require.True(t, ok)
	return rj
}

func TestRetentionJobComputesCutoff(t *testing.T) {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	var gotCutoff time.Time
	spy := &rowsSpy{}
	job := newRetention(t, RetentionJobParams{
		Name: OutboxRetentionJobName,
		DB:   nilTx{},
		Purge: func(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
			gotCutoff = cutoff
			return 4, nil
		},
		Retention: 30 * 24 * time.Hour,
		Metrics:   spy,
	})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-30*24*time.Hour), gotCutoff)
	assert.Equal(t, OutboxRetentionJobName, spy.job)
	assert.EqualValues(t, 4, spy.rows)
}

func TestRetentionJobWrapsPurgeError(t *testing.T) {
	spy := &rowsSpy{}
	job := newRetention(t, RetentionJobParams{
		Name: WebhookAuditRetentionJobName,
		DB:   nilTx{},
		Purge: func(context.Context, *gorm.DB, time.Time) (int64, error) {
			return 0, errors.New("disk full")
		},
		Retention: time.Hour,
		Metrics:   spy,
	})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), WebhookAuditRetentionJobName)
	assert.Zero(t, spy.rows)
}

func TestNewRetentionJobValidates(t *testing.T) {
	purge := func(context.Context, *gorm.DB, time.Time) (int64, error) { return 0, nil }
	cases := map[string]RetentionJobParams{
		"missing name":   {Logger: testLogger(), DB: nilTx{}, Purge: purge, Retention: time.Hour},
		"missing db":     {Name: "x", Logger: testLogger(), Purge: purge, Retention: time.Hour},
		"missing purge":  {Name: "x", Logger: testLogger(), DB: nilTx{}, Retention: time.Hour},
		"zero retention": {Name: "x", Logger: testLogger(), DB: nilTx{}, Purge: purge},
		"missing logger": {Name: "x", DB: nilTx{}, Purge: purge, Retention: time.Hour},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRetentionJob(params)
			assert.Error(t, err)
		})
	}
}

func TestRetentionJobsPruneStoredRows(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OutboxEvent{}, &models.WebhookEvent{}))

	now := time.Now().UTC()
	published := now.Add(-40 * 24 * time.Hour)
	require.NoError(t, db.Create(&models.OutboxEvent{
		EventType:     enums.EventSubscriptionStatusChanged,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		PublishedAt:   &published,
	}).Error)
	require.NoError(t, db.Create(&models.OutboxEvent{
		EventType:     enums.EventSubscriptionStatusChanged,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}).Error)

	audit := paystackwebhook.NewAuditRepository(db)
	for _, received := range []time.Time{now.Add(-100 * 24 * time.Hour), now} {
		require.NoError(t, audit.Record(context.Background(), &models.WebhookEvent{
			Provider:    enums.WebhookProviderPaystack,
			EventType:   string(enums.PaystackEventSubscriptionDisable),
			PayloadHash: uuid.NewString(),
			Outcome:     enums.WebhookOutcomeUnmatched,
			ReceivedAt:  received,
		}))
	}

	registry := NewRegistry(
		newRetention(t, RetentionJobParams{
			Name:      OutboxRetentionJobName,
			DB:        gormTx{db: db},
			Purge:     outbox.NewRepository(db).DeletePublishedBefore,
			Retention: 30 * 24 * time.Hour,
		}),
		newRetention(t, RetentionJobParams{
			Name:      WebhookAuditRetentionJobName,
			DB:        gormTx{db: db},
			Purge:     audit.DeleteReceivedBefore,
			Retention: 90 * 24 * time.Hour,
		}),
	)
	runner, err := NewRunner(RunnerParams{Logger: testLogger(), Registry: registry, Lock: &stubLock{}})
	require.NoError(t, err)
	require.NoError(t, runner.runCycle(context.Background()))

	var outboxRows, auditRows int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&outboxRows).Error)
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&auditRows).Error)
	assert.EqualValues(t, 1, outboxRows)
	assert.EqualValues(t, 1, auditRows)
}
