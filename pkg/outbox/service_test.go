package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), logger.Nop())
	orderID := uuid.New()
	actor := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{UserID: actor, Role: "customer"},
			Data:          map[string]string{"order_id": orderID.String()},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	require.Equal(t, enums.EventOrderPaid, row.EventType)
	require.Equal(t, orderID, row.AggregateID)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &env))
	require.Equal(t, 1, env.Version)
	require.Equal(t, enums.EventOrderPaid, env.EventType)
	require.Equal(t, orderID, env.AggregateID)
	require.Equal(t, actor, env.Actor.UserID)
	require.JSONEq(t, `{"order_id":"`+orderID.String()+`"}`, string(env.Data))
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	cases := map[string]DomainEvent{
		"unknown type":      {EventType: "ad_created", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()},
		"unknown aggregate": {EventType: enums.EventOrderPaid, AggregateType: "vendor", AggregateID: uuid.New()},
		"nil aggregate id":  {EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder},
	}
	for name, event := range cases {
		err := conn.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, event)
		})
		require.Error(t, err, name)
	}
	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRepositoryLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	dlq := NewDLQRepository(conn)

	first := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(conn, first))
	require.NoError(t, repo.Insert(conn, second))

	var failedID uuid.UUID
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		failedID = rows[1].ID
		require.NoError(t, repo.MarkPublishedTx(tx, rows[0].ID))
		return repo.MarkFailedTx(tx, failedID, errors.New("broker down"))
	}))

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, failedID, rows[0].ID)
		require.Equal(t, 1, rows[0].AttemptCount)

		msg := "gave up"
		require.NoError(t, dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       rows[0].ID,
			EventType:     rows[0].EventType,
			AggregateType: rows[0].AggregateType,
			AggregateID:   rows[0].AggregateID,
			Payload:       rows[0].Payload,
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			ErrorMessage:  &msg,
			AttemptCount:  rows[0].AttemptCount,
		}))
		return repo.MarkTerminalTx(tx, rows[0].ID, errors.New(msg), 3)
	}))

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Empty(t, rows)
		return nil
	}))

	var entries []models.OutboxDLQ
	require.NoError(t, conn.Where("event_id = ?", failedID).Find(&entries).Error)
	require.Len(t, entries, 1)
	require.Equal(t, enums.OutboxDLQReasonMaxAttempts, entries[0].ErrorReason)
	require.Equal(t, "gave up", *entries[0].ErrorMessage)
}

func TestClipUTF8CapsDLQMessages(t *testing.T) {
	long := strings.Repeat("x", maxDLQErrorBytes+10)
	require.Len(t, clipUTF8(long, maxDLQErrorBytes), maxDLQErrorBytes)
	require.Equal(t, "short", clipUTF8("short", maxDLQErrorBytes))
}

func TestClipUTF8KeepsRunesWhole(t *testing.T) {
	require.Equal(t, "abc", clipUTF8("abc", 10))
	require.Equal(t, "ab", clipUTF8("abé", 3))
	require.Equal(t, "abé", clipUTF8("abéd", 4))
}
