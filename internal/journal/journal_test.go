package journal

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/glowe/dartviz/internal/database"
	"github.com/glowe/dartviz/internal/dispatcher"
	"github.com/glowe/dartviz/internal/influx"
	"github.com/glowe/dartviz/pkg/core"
)

var (
	_ Sink = (*GormSink)(nil)
	_ Sink = (*InfluxSink)(nil)
)

type memSink struct {
	mu      sync.Mutex
	batches [][]core.Visualized
	fail    error
	closed  bool
}

func (s *memSink) Write(_ context.Context, batch []core.Visualized) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.batches = append(s.batches, batch)
	return nil
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func (s *memSink) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func visualized(entity, value int) core.Visualized {
	return core.Visualized{
		Time:       time.Unix(1700000000, 0).UTC(),
		EntityID:   entity,
		Value:      value,
		Multiplier: 2,
		Radius:     0.5,
		Angle:      1.25,
		Source:     "test",
	}
}

func TestJournal_RecordAndFlush(t *testing.T) {
	sink := &memSink{}
	j := New(sink, Options{}, nil)

	require.NoError(t, j.Record(visualized(1, 20)))
	require.NoError(t, j.Record(visualized(2, 5)))
	assert.Equal(t, 2, j.Pending())

	require.NoError(t, j.Flush(context.Background()))
	assert.Equal(t, 0, j.Pending())
	assert.Equal(t, uint64(2), j.Written())
	assert.Equal(t, 2, sink.count())

	// Nothing pending is a no-op.
	require.NoError(t, j.Flush(context.Background()))
	assert.Len(t, sink.batches, 1)
}

func TestJournal_FlushFailureRequeues(t *testing.T) {
	sink := &memSink{}
	j := New(sink, Options{}, nil)
	require.NoError(t, j.Record(visualized(1, 20)))

	boom := errors.New("boom")
	sink.setFail(boom)
	assert.ErrorIs(t, j.Flush(context.Background()), boom)
	assert.Equal(t, 1, j.Pending())
	assert.Zero(t, j.Written())

	sink.setFail(nil)
	require.NoError(t, j.Record(visualized(1, 3)))
	require.NoError(t, j.Flush(context.Background()))
	require.Len(t, sink.batches, 1)
	assert.Equal(t, 20, sink.batches[0][0].Value)
	assert.Equal(t, 3, sink.batches[0][1].Value)
}

func TestJournal_LimitEvictsOldest(t *testing.T) {
	sink := &memSink{}
	j := New(sink, Options{Limit: 2}, nil)
	for v := 1; v <= 4; v++ {
		require.NoError(t, j.Record(visualized(1, v)))
	}
	assert.Equal(t, uint64(2), j.Dropped())

	require.NoError(t, j.Flush(context.Background()))
	require.Len(t, sink.batches, 1)
	assert.Equal(t, 3, sink.batches[0][0].Value)
	assert.Equal(t, 4, sink.batches[0][1].Value)
}

func TestJournal_CloseFlushesAndRejects(t *testing.T) {
	sink := &memSink{}
	j := New(sink, Options{}, nil)
	require.NoError(t, j.Record(visualized(1, 1)))

	require.NoError(t, j.Close(context.Background()))
	assert.Equal(t, 1, sink.count())
	assert.True(t, sink.closed)
	assert.ErrorIs(t, j.Record(visualized(1, 2)), ErrClosed)
	assert.NoError(t, j.Close(context.Background()))
}

func TestJournal_RunFlushesPeriodically(t *testing.T) {
	sink := &memSink{}
	j := New(sink, Options{FlushInterval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	require.NoError(t, j.Record(visualized(3, 7)))
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestJournal_Register(t *testing.T) {
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)

	j := New(&memSink{}, Options{}, nil)
	j.Register(d)
	assert.True(t, d.HasHandler(CommandMarker))

	res, err := d.Dispatch(dispatcher.Event{Command: CommandMarker, Payload: visualized(1, 9)})
	require.NoError(t, err)
	assert.Equal(t, dispatcher.ResultQueued, res)
	require.Eventually(t, func() bool { return j.Pending() == 1 }, time.Second, 5*time.Millisecond)

	// Wrong payloads are queued but never recorded.
	_, err = d.Dispatch(dispatcher.Event{Command: CommandMarker, Payload: "nope"})
	require.NoError(t, err)
	require.NoError(t, j.Record(visualized(1, 10)))
	require.Eventually(t, func() bool { return j.Pending() == 2 }, time.Second, 5*time.Millisecond)
}

func TestGormSink(t *testing.T) {
	m := database.NewManager(zerolog.Nop())
	require.NoError(t, m.Connect(database.Options{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "journal.db"),
	}))
	t.Cleanup(func() { _ = m.Close() })

	sink, err := NewGormSink(m.DB)
	require.NoError(t, err)

	raw, err := json.Marshal(core.Throw{PlayerID: core.Int(1), Score: core.Int(20)})
	require.NoError(t, err)
	withRaw := visualized(1, 20)
	withRaw.Raw = raw

	require.NoError(t, sink.Write(context.Background(), []core.Visualized{withRaw, visualized(2, 5)}))
	require.NoError(t, sink.Write(context.Background(), nil))

	var rows []ThrowRecord
	require.NoError(t, m.DB.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].EntityID)
	assert.Equal(t, 40, rows[0].Points)
	assert.JSONEq(t, string(raw), string(rows[0].Raw))
	assert.Equal(t, "test", rows[1].Source)
	assert.Equal(t, "null", string(rows[1].Raw))
	assert.True(t, rows[0].Time.Equal(withRaw.Time))
	assert.NoError(t, sink.Close())
}

func TestInfluxSink_WritesBackup(t *testing.T) {
	m := influx.NewManager(zerolog.Nop(), filepath.Join(t.TempDir(), "backup.gz"))
	sink := NewInfluxSink(m)

	err := sink.Write(context.Background(), []core.Visualized{visualized(1, 1)})
	assert.ErrorIs(t, err, influx.ErrNotConnected)
	assert.NoError(t, sink.Close())
}

func TestNewThrowRecord(t *testing.T) {
	rec := NewThrowRecord(visualized(4, 19))
	assert.Equal(t, "throw_journal", rec.TableName())
	assert.Equal(t, 38, rec.Points)
	assert.Equal(t, datatypes.JSON("null"), rec.Raw)
}
