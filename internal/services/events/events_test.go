package events

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steam-inventory/internal/services/inventory"
)

type fakeSource struct {
	ready []func(inventory.ResultReadyEvent)
	full  []func(inventory.FullUpdateEvent)
	defs  []func(inventory.DefinitionUpdateEvent)
}

func (s *fakeSource) OnResultReady(fn func(inventory.ResultReadyEvent)) {
	s.ready = append(s.ready, fn)
}

func (s *fakeSource) OnFullUpdate(fn func(inventory.FullUpdateEvent)) {
	s.full = append(s.full, fn)
}

func (s *fakeSource) OnDefinitionUpdate(fn func(inventory.DefinitionUpdateEvent)) {
	s.defs = append(s.defs, fn)
}

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	sent []message
	err  error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, message{subject: subject, data: data})
	return nil
}

func discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestForward(t *testing.T) {
	src := &fakeSource{}
	var got []Notification
	Forward(src, func(n Notification) { got = append(got, n) })

	require.Len(t, src.ready, 1)
	require.Len(t, src.full, 1)
	require.Len(t, src.defs, 1)

	src.ready[0](inventory.ResultReadyEvent{Handle: inventory.NewResultHandle(3), Result: inventory.ResultTimeout})
	src.full[0](inventory.FullUpdateEvent{Handle: inventory.NewResultHandle(4)})
	src.defs[0](inventory.DefinitionUpdateEvent{})

	require.Len(t, got, 3)
	assert.Equal(t, "result_ready", got[0].Type)
	assert.Equal(t, inventory.NewResultHandle(3), *got[0].Handle)
	assert.Equal(t, "Timeout", got[0].Result)
	assert.Equal(t, int32(16), got[0].Code)
	assert.Equal(t, "full_update", got[1].Type)
	assert.Equal(t, "definition_update", got[2].Type)
	assert.Nil(t, got[2].Handle)
}

func TestNATSPublisher_Publish(t *testing.T) {
	conn := &fakeConn{}
	p := newNATSPublisher(conn, "steam.inventory", discard())

	src := &fakeSource{}
	Forward(src, p.Publish)
	src.ready[0](inventory.ResultReadyEvent{Handle: inventory.NewResultHandle(9), Result: inventory.ResultOK})
	src.defs[0](inventory.DefinitionUpdateEvent{})

	require.Len(t, conn.sent, 2)
	assert.Equal(t, "steam.inventory.result_ready", conn.sent[0].subject)
	assert.Equal(t, "steam.inventory.definition_update", conn.sent[1].subject)

	var body map[string]any
	require.NoError(t, json.Unmarshal(conn.sent[0].data, &body))
	assert.Equal(t, float64(9), body["handle"])
	assert.Equal(t, "OK", body["result"])

	var defs map[string]any
	require.NoError(t, json.Unmarshal(conn.sent[1].data, &defs))
	assert.NotContains(t, defs, "code")
	assert.NotContains(t, defs, "handle")
}

func TestNATSPublisher_ErrorsAreDropped(t *testing.T) {
	conn := &fakeConn{err: errors.New("connection closed")}
	p := newNATSPublisher(conn, "steam.inventory", discard())

	assert.NotPanics(t, func() {
		p.Publish(Notification{Type: "full_update"})
	})
	p.Close()
}
