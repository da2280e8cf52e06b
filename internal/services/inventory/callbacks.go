package inventory

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Callback tags of the inventory completion records.
const (
	CallbackResultReady      int32 = 4700
	CallbackFullUpdate       int32 = 4701
	CallbackDefinitionUpdate int32 = 4702
)

// Byte sizes of the native record layouts.
const (
	resultReadySize      = 8 // int32 handle, int32 result
	fullUpdateSize       = 4 // int32 handle
	definitionUpdateSize = 1 // empty struct
)

// CallbackRecord is a raw completion record as delivered by the event pump.
type CallbackRecord struct {
	Tag    int32
	Length int32
	Data   []byte
}

// ResultReadyEvent reports that the query behind Handle has finished.
type ResultReadyEvent struct {
	Handle ResultHandle `json:"handle"`
	Result EResult      `json:"result"`
}

// FullUpdateEvent reports that a full inventory snapshot is available.
// It may arrive without a matching call site.
type FullUpdateEvent struct {
	Handle ResultHandle `json:"handle"`
}

// DefinitionUpdateEvent reports that the item catalog was (re)loaded.
type DefinitionUpdateEvent struct{}

type recordLayout struct {
	name   string
	size   int32
	decode func(b []byte) any
}

var layouts = map[int32]recordLayout{
	CallbackResultReady: {
		name: "result_ready",
		size: resultReadySize,
		decode: func(b []byte) any {
			return ResultReadyEvent{
				Handle: NewResultHandle(int32(binary.LittleEndian.Uint32(b[0:4]))),
				Result: EResult(int32(binary.LittleEndian.Uint32(b[4:8]))),
			}
		},
	},
	CallbackFullUpdate: {
		name: "full_update",
		size: fullUpdateSize,
		decode: func(b []byte) any {
			return FullUpdateEvent{Handle: NewResultHandle(int32(binary.LittleEndian.Uint32(b[0:4])))}
		},
	},
	CallbackDefinitionUpdate: {
		name: "definition_update",
		size: definitionUpdateSize,
		decode: func([]byte) any {
			return DefinitionUpdateEvent{}
		},
	},
}

// CallbackTags lists the record tags the channel understands.
func CallbackTags() []int32 {
	return []int32{CallbackResultReady, CallbackFullUpdate, CallbackDefinitionUpdate}
}

// CallbackName returns the short name of a record tag.
func CallbackName(tag int32) string {
	if l, ok := layouts[tag]; ok {
		return l.name
	}
	return fmt.Sprintf("callback_%d", tag)
}

func EncodeResultReady(h ResultHandle, result EResult) CallbackRecord {
	b := make([]byte, resultReadySize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(h.Raw()))
	binary.LittleEndian.PutUint32(b[4:8], uint32(result))
	return CallbackRecord{Tag: CallbackResultReady, Length: resultReadySize, Data: b}
}

func EncodeFullUpdate(h ResultHandle) CallbackRecord {
	b := make([]byte, fullUpdateSize)
	binary.LittleEndian.PutUint32(b, uint32(h.Raw()))
	return CallbackRecord{Tag: CallbackFullUpdate, Length: fullUpdateSize, Data: b}
}

func EncodeDefinitionUpdate() CallbackRecord {
	return CallbackRecord{Tag: CallbackDefinitionUpdate, Length: definitionUpdateSize, Data: make([]byte, definitionUpdateSize)}
}

// handlerList is append-only. Readers take a snapshot without locking.
type handlerList struct {
	mu  sync.Mutex
	fns atomic.Pointer[[]func(any)]
}

func (l *handlerList) add(fn func(any)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var next []func(any)
	if cur := l.fns.Load(); cur != nil {
		next = make([]func(any), len(*cur), len(*cur)+1)
		copy(next, *cur)
	}
	next = append(next, fn)
	l.fns.Store(&next)
}

func (l *handlerList) snapshot() []func(any) {
	if cur := l.fns.Load(); cur != nil {
		return *cur
	}
	return nil
}

// Channel decodes completion records and fans the typed events out to the
// registered handlers, synchronously and in registration order.
type Channel struct {
	handlers map[int32]*handlerList
	log      *logrus.Entry
	recorder Recorder
}

func newChannel(log *logrus.Entry, recorder Recorder) *Channel {
	c := &Channel{
		handlers: make(map[int32]*handlerList, len(layouts)),
		log:      log,
		recorder: recorder,
	}
	for tag := range layouts {
		c.handlers[tag] = &handlerList{}
	}
	return c
}

func (c *Channel) subscribe(tag int32, fn func(any)) {
	c.handlers[tag].add(fn)
}

// Dispatch validates rec, decodes it and invokes every handler registered for
// its tag. Unknown tags and records whose length does not match the tag's
// layout are logged and skipped; the returned error is informational.
func (c *Channel) Dispatch(rec CallbackRecord) error {
	layout, ok := layouts[rec.Tag]
	if !ok {
		c.recorder.RecordRejected("unknown_tag")
		c.log.WithField("tag", rec.Tag).Warn("skipping completion record with unknown tag")
		return newError(KindUnknownCallback, "dispatch", fmt.Sprintf("tag %d", rec.Tag), nil)
	}

	if rec.Length != layout.size || len(rec.Data) != int(layout.size) {
		c.recorder.RecordRejected("length_mismatch")
		c.log.WithFields(logrus.Fields{
			"callback": layout.name,
			"expected": layout.size,
			"declared": rec.Length,
			"actual":   len(rec.Data),
		}).Error("skipping malformed completion record")
		return newError(KindMalformedRecord, "dispatch",
			fmt.Sprintf("%s expects %d bytes, record declares %d and carries %d", layout.name, layout.size, rec.Length, len(rec.Data)), nil)
	}

	ev := layout.decode(rec.Data)
	c.recorder.CallbackDispatched(rec.Tag)
	for i, fn := range c.handlers[rec.Tag].snapshot() {
		c.invoke(rec.Tag, i, fn, ev)
	}
	return nil
}

func (c *Channel) invoke(tag int32, idx int, fn func(any), ev any) {
	defer func() {
		if r := recover(); r != nil {
			c.recorder.HandlerPanicked(tag)
			c.log.WithFields(logrus.Fields{
				"callback": CallbackName(tag),
				"handler":  idx,
				"panic":    r,
			}).Error("inventory callback handler panicked")
		}
	}()
	fn(ev)
}
