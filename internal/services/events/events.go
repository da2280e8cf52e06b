package events

import (
	"time"

	"steam-inventory/internal/services/inventory"
)

// Notification is the wire shape of a completion event for consumers
// outside the process.
type Notification struct {
	Type   string                  `json:"type"`
	Handle *inventory.ResultHandle `json:"handle,omitempty"`
	Result string                  `json:"result,omitempty"`
	Code   int32                   `json:"code,omitempty"`
	Time   time.Time               `json:"time"`
}

// Source is the subset of the inventory facade that emits events.
type Source interface {
	OnResultReady(fn func(inventory.ResultReadyEvent))
	OnFullUpdate(fn func(inventory.FullUpdateEvent))
	OnDefinitionUpdate(fn func(inventory.DefinitionUpdateEvent))
}

// Forward subscribes sink to all three event kinds. sink runs on the pump
// goroutine and must not block.
func Forward(src Source, sink func(Notification)) {
	src.OnResultReady(func(ev inventory.ResultReadyEvent) {
		h := ev.Handle
		sink(Notification{
			Type:   inventory.CallbackName(inventory.CallbackResultReady),
			Handle: &h,
			Result: ev.Result.String(),
			Code:   int32(ev.Result),
			Time:   time.Now().UTC(),
		})
	})
	src.OnFullUpdate(func(ev inventory.FullUpdateEvent) {
		h := ev.Handle
		sink(Notification{
			Type:   inventory.CallbackName(inventory.CallbackFullUpdate),
			Handle: &h,
			Time:   time.Now().UTC(),
		})
	})
	src.OnDefinitionUpdate(func(inventory.DefinitionUpdateEvent) {
		sink(Notification{
			Type: inventory.CallbackName(inventory.CallbackDefinitionUpdate),
			Time: time.Now().UTC(),
		})
	})
}
