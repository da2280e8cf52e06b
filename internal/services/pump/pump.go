package pump

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"steam-inventory/internal/services/inventory"
)

// Pump queues completion records posted by the native backend and delivers
// them to registered listeners when RunCallbacks is called. Delivery happens
// on the goroutine running RunCallbacks, one record after another.
type Pump struct {
	queue chan inventory.CallbackRecord

	mu        sync.RWMutex
	listeners map[int32][]func(inventory.CallbackRecord)

	run     sync.Mutex
	dropped atomic.Uint64
	log     *logrus.Entry
}

func New(capacity int, log *logrus.Entry) *Pump {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Pump{
		queue:     make(chan inventory.CallbackRecord, capacity),
		listeners: make(map[int32][]func(inventory.CallbackRecord)),
		log:       log,
	}
}

// Register implements inventory.Pump.
func (p *Pump) Register(tag int32, deliver func(rec inventory.CallbackRecord)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners[tag] = append(p.listeners[tag], deliver)
}

// Post enqueues rec without blocking. It reports false when the queue is full
// and the record was dropped.
func (p *Pump) Post(rec inventory.CallbackRecord) bool {
	select {
	case p.queue <- rec:
		return true
	default:
		p.dropped.Add(1)
		p.log.WithField("tag", rec.Tag).Error("callback queue full, dropping record")
		return false
	}
}

// RunCallbacks delivers the records queued at the time of the call and
// returns how many were handed to listeners.
func (p *Pump) RunCallbacks() int {
	p.run.Lock()
	defer p.run.Unlock()

	delivered := 0
	for n := len(p.queue); n > 0; n-- {
		rec := <-p.queue

		p.mu.RLock()
		ls := p.listeners[rec.Tag]
		p.mu.RUnlock()

		if len(ls) == 0 {
			p.log.WithField("tag", rec.Tag).Warn("no listener for callback record")
			continue
		}
		for _, fn := range ls {
			fn(rec)
		}
		delivered++
	}
	return delivered
}

// Pending returns the number of queued records.
func (p *Pump) Pending() int {
	return len(p.queue)
}

// Dropped returns how many records were lost to a full queue.
func (p *Pump) Dropped() uint64 {
	return p.dropped.Load()
}
