package events

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/tomearr/tomearr/internal/migrations"
	"github.com/tomearr/tomearr/internal/pipeline"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(migrations.InitialSQL)
	require.NoError(t, err)
	return db
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(NewEventLog(setupTestDB(t)), nil)
	defer bus.Close()

	ch := bus.Subscribe(EventItemStateChanged, 10)

	e := FromTransition(1, "B01ABC", pipeline.StatusQueued, pipeline.StatusSearching, 0)
	require.NoError(t, bus.Publish(context.Background(), e))

	select {
	case received := <-ch:
		assert.Equal(t, EventItemStateChanged, received.EventType())
		assert.Equal(t, int64(1), received.EntityID())
		assert.NotEmpty(t, received.EventID())
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus(nil, nil)
	defer bus.Close()

	ch := bus.SubscribeAll(10)

	require.NoError(t, bus.Publish(context.Background(), &ItemQueued{
		BaseEvent: NewBaseEvent(EventItemQueued, EntityItem, 1),
		Identity:  "B01ABC",
		Title:     "Project Hail Mary",
	}))
	require.NoError(t, bus.Publish(context.Background(), FromTransition(1, "B01ABC", pipeline.StatusQueued, pipeline.StatusSearching, 0)))

	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i+1)
		}
	}
}

func TestBus_FullSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus(nil, nil)
	defer bus.Close()

	bus.Subscribe(EventItemProgressed, 1)

	// Two publishes against a one-slot buffer; the second is dropped.
	for i := 0; i < 2; i++ {
		done := make(chan struct{})
		go func() {
			bus.Publish(context.Background(), &ItemProgressed{
				BaseEvent: NewBaseEvent(EventItemProgressed, EntityItem, 1),
				Progress:  float64(i) * 50,
			})
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("publish blocked on full subscriber")
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil, nil)
	defer bus.Close()

	ch := bus.Subscribe(EventItemQueued, 10)
	bus.Unsubscribe(ch)

	// Channel is closed on unsubscribe.
	_, ok := <-ch
	assert.False(t, ok)

	require.NoError(t, bus.Publish(context.Background(), &ItemQueued{
		BaseEvent: NewBaseEvent(EventItemQueued, EntityItem, 1),
	}))
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus(nil, nil)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), &ItemQueued{
		BaseEvent: NewBaseEvent(EventItemQueued, EntityItem, 1),
	})
	assert.NoError(t, err)
}

func TestEventLog_AppendAndQuery(t *testing.T) {
	log := NewEventLog(setupTestDB(t))

	e1 := FromTransition(7, "B01ABC", pipeline.StatusQueued, pipeline.StatusSearching, 0)
	e2 := FromTransition(7, "B01ABC", pipeline.StatusSearching, pipeline.StatusFound, 0)
	e3 := FromTransition(9, "B02XYZ", pipeline.StatusQueued, pipeline.StatusSearching, 0)

	for _, e := range []Event{e1, e2, e3} {
		_, err := log.Append(e)
		require.NoError(t, err)
	}

	records, err := log.ForEntity(EntityItem, 7)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, e1.EventID(), records[0].EventID)
	assert.Equal(t, e2.EventID(), records[1].EventID)
	assert.Contains(t, records[0].Payload, `"old_state":"queued"`)

	all, err := log.Since(time.Now().Add(-time.Minute), 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := log.Since(time.Now().Add(-time.Minute), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestEventLog_Prune(t *testing.T) {
	log := NewEventLog(setupTestDB(t))

	old := FromTransition(1, "B01ABC", pipeline.StatusQueued, pipeline.StatusSearching, 0)
	old.Timestamp = time.Now().UTC().Add(-48 * time.Hour)
	_, err := log.Append(old)
	require.NoError(t, err)

	recent := FromTransition(1, "B01ABC", pipeline.StatusSearching, pipeline.StatusFound, 0)
	_, err = log.Append(recent)
	require.NoError(t, err)

	pruned, err := log.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	remaining, err := log.Since(time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, recent.EventID(), remaining[0].EventID)
}
