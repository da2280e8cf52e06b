package inventory

// Native is the foreign inventory service. Calls are synchronous and return
// immediately; completion arrives later as callback records through the Pump.
//
// The two-phase readers follow the native convention: a nil destination asks
// for the required count in *size, a non-nil destination is filled and *size
// receives the number of elements written.
type Native interface {
	GrantPromoItems(handle *int32) bool
	GetAllItems(handle *int32) bool
	GetResultItems(handle int32, dest []ItemDetails, size *uint32) bool
	DestroyResult(handle int32)
	CheckResultSteamID(handle int32, steamID uint64) bool
	LoadItemDefinitions() bool
	GetItemDefinitionIDs(dest []int32, size *uint32) bool
	GetItemDefinitionProperty(def int32, name string, dest []byte, size *uint32) bool
}

// Pump is the external event loop. Register asks it to deliver every record
// carrying tag to deliver, on the pump's own goroutine.
type Pump interface {
	Register(tag int32, deliver func(rec CallbackRecord))
}

// Recorder receives counters from the core.
type Recorder interface {
	CallbackDispatched(tag int32)
	RecordRejected(reason string)
	HandlerPanicked(tag int32)
	OutstandingResults(n int)
}

type nopRecorder struct{}

func (nopRecorder) CallbackDispatched(int32) {}
func (nopRecorder) RecordRejected(string)    {}
func (nopRecorder) HandlerPanicked(int32)    {}
func (nopRecorder) OutstandingResults(int)   {}
