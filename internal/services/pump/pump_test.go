package pump

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steam-inventory/internal/services/inventory"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestPump_DeliversInPostOrder(t *testing.T) {
	p := New(16, testLogger())

	var got []int32
	p.Register(inventory.CallbackResultReady, func(rec inventory.CallbackRecord) {
		got = append(got, rec.Tag)
	})
	p.Register(inventory.CallbackFullUpdate, func(rec inventory.CallbackRecord) {
		got = append(got, rec.Tag)
	})

	require.True(t, p.Post(inventory.EncodeResultReady(inventory.NewResultHandle(1), inventory.ResultOK)))
	require.True(t, p.Post(inventory.EncodeFullUpdate(inventory.NewResultHandle(1))))
	assert.Equal(t, 2, p.Pending())
	assert.Empty(t, got, "nothing is delivered before RunCallbacks")

	assert.Equal(t, 2, p.RunCallbacks())
	assert.Equal(t, []int32{inventory.CallbackResultReady, inventory.CallbackFullUpdate}, got)
	assert.Zero(t, p.Pending())
}

func TestPump_UnregisteredTagIsConsumed(t *testing.T) {
	p := New(4, testLogger())

	p.Post(inventory.CallbackRecord{Tag: 9999})
	assert.Zero(t, p.RunCallbacks())
	assert.Zero(t, p.Pending())
}

func TestPump_FullQueueDrops(t *testing.T) {
	p := New(1, testLogger())

	assert.True(t, p.Post(inventory.EncodeDefinitionUpdate()))
	assert.False(t, p.Post(inventory.EncodeDefinitionUpdate()))
	assert.EqualValues(t, 1, p.Dropped())
}

func TestPump_RecordsPostedDuringDeliveryWaitForNextRun(t *testing.T) {
	p := New(8, testLogger())

	calls := 0
	p.Register(inventory.CallbackDefinitionUpdate, func(inventory.CallbackRecord) {
		calls++
		p.Post(inventory.EncodeDefinitionUpdate())
	})

	p.Post(inventory.EncodeDefinitionUpdate())
	assert.Equal(t, 1, p.RunCallbacks())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, p.Pending())
}

func TestPump_FeedsInventoryChannel(t *testing.T) {
	p := New(8, testLogger())
	inv := inventory.New(nil, p)

	var got inventory.ResultReadyEvent
	inv.OnResultReady(func(ev inventory.ResultReadyEvent) { got = ev })

	p.Post(inventory.EncodeResultReady(inventory.NewResultHandle(4), inventory.ResultOK))
	p.RunCallbacks()
	assert.Equal(t, inventory.NewResultHandle(4), got.Handle)
	assert.True(t, got.Result.OK())
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := NewScheduler(testLogger())

	var runs atomic.Int32
	require.NoError(t, s.Every("@every 1s", "tick", func() { runs.Add(1) }))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	s := NewScheduler(testLogger())
	err := s.Every("not a schedule", "broken", func() {})
	assert.Error(t, err)
}
