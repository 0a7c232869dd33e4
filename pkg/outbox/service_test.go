package outbox

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

	"github.com/angelmondragon/bioshop-backend/pkg/db/models"
	"github.com/angelmondragon/bioshop-backend/pkg/enums"
)

func setupOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OutboxEvent{}))
	return db
}

func TestEmitWritesEnvelope(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	aggregateID := uuid.New()
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventSubscriptionStatusChanged,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   aggregateID,
			Actor:         &ActorRef{Kind: ActorKindWebhook},
			Data:          map[string]string{"status": "active"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, aggregateID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.False(t, envelope.OccurredAt.IsZero())
	assert.Equal(t, ActorKindWebhook, envelope.Actor.Kind)
	assert.JSONEq(t, `{"status":"active"}`, string(envelope.Data))
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{})
	assert.Error(t, err)
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	db := setupOutboxDB(t)
	svc := NewService(NewRepository(db), nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventSubscriptionStatusChanged,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return errors.New("caller failed")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewRepository(db)

	first := models.OutboxEvent{
		EventType:     enums.EventSubscriptionStatusChanged,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}
	second := first
	second.AggregateID = uuid.New()
	require.NoError(t, repo.Insert(db, first))
	require.NoError(t, repo.Insert(db, second))

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkPublishedTx(db, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(db, rows[1].ID, errors.New("unavailable")))

	rows, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "unavailable", *rows[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(db, rows[0].ID, errors.New("gave up"), 3))
	rows, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRepositoryDeletePublishedBeforeKeepsPending(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewRepository(db)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Insert(db, models.OutboxEvent{
			EventType:     enums.EventSubscriptionStatusChanged,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
		}))
	}
	rows, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.NoError(t, repo.MarkPublishedTx(db, rows[0].ID))
	require.NoError(t, repo.MarkPublishedTx(db, rows[1].ID))

	deleted, err := repo.DeletePublishedBefore(context.Background(), nil, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = repo.DeletePublishedBefore(context.Background(), db, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, rows[2].ID, remaining[0].ID)
}

func TestEmitRejectsInvalidEvents(t *testing.T) {
	db := setupOutboxDB(t)
	svc := NewService(NewRepository(db), nil)

	cases := map[string]DomainEvent{
		"unknown type":  {EventType: "order_created", AggregateType: enums.AggregateSubscription, AggregateID: uuid.New(), Data: struct{}{}},
		"nil aggregate": {EventType: enums.EventSubscriptionDeleted, AggregateType: enums.AggregateSubscription, Data: struct{}{}},
		"null data":     {EventType: enums.EventSubscriptionDeleted, AggregateType: enums.AggregateSubscription, AggregateID: uuid.New()},
	}
	for name, event := range cases {
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, event)
		})
		assert.Error(t, err, name)
	}

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"e-1","data":{"status":"active"}}`))
	require.NoError(t, err)
	assert.Equal(t, "e-1", env.EventID)

	_, err = DecodeEnvelope([]byte(`{"version":1,"eventId":"e-2","data":null}`))
	assert.ErrorIs(t, err, errEmptyData)

	_, err = DecodeEnvelope([]byte(`{`))
	assert.Error(t, err)
}

func TestRepositoryMarksRejectMissingRows(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewRepository(db)

	err := repo.MarkFailedTx(db, uuid.New(), errors.New("boom"))
	assert.ErrorContains(t, err, "not found")
}

func TestTruncateError(t *testing.T) {
	long := errors.New(string(make([]byte, maxLastErrorLen+10)))
	assert.Len(t, truncateError(long), maxLastErrorLen)
	assert.Equal(t, "", truncateError(nil))
}
