package inventory

import (
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Inventory is the query facade over a Native inventory service. Every query
// returns immediately; completion is reported through the handlers registered
// with OnResultReady, OnFullUpdate and OnDefinitionUpdate.
//
// The native session is assumed to have a single logical owner; Inventory
// adds no locking around it.
type Inventory struct {
	native   Native
	channel  *Channel
	results  *resultTable
	log      *logrus.Entry
	recorder Recorder
}

type Option func(*Inventory)

func WithLogger(log *logrus.Entry) Option {
	return func(i *Inventory) {
		i.log = log
	}
}

func WithRecorder(r Recorder) Option {
	return func(i *Inventory) {
		i.recorder = r
	}
}

// New builds the facade and registers its completion channel with pump for
// every inventory callback tag.
func New(native Native, pump Pump, opts ...Option) *Inventory {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	i := &Inventory{
		native:   native,
		results:  newResultTable(),
		log:      logrus.NewEntry(discard),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(i)
	}
	i.channel = newChannel(i.log, i.recorder)

	for _, tag := range CallbackTags() {
		pump.Register(tag, func(rec CallbackRecord) {
			_ = i.channel.Dispatch(rec)
		})
	}
	return i
}

// Channel exposes the completion channel so synthetic records can be fed in.
func (i *Inventory) Channel() *Channel {
	return i.channel
}

func (i *Inventory) OnResultReady(fn func(ResultReadyEvent)) {
	i.channel.subscribe(CallbackResultReady, func(ev any) {
		fn(ev.(ResultReadyEvent))
	})
}

func (i *Inventory) OnFullUpdate(fn func(FullUpdateEvent)) {
	i.channel.subscribe(CallbackFullUpdate, func(ev any) {
		fn(ev.(FullUpdateEvent))
	})
}

func (i *Inventory) OnDefinitionUpdate(fn func(DefinitionUpdateEvent)) {
	i.channel.subscribe(CallbackDefinitionUpdate, func(ev any) {
		fn(ev.(DefinitionUpdateEvent))
	})
}

// GrantPromoItems asks the service to grant every promo item the user is
// eligible for. When accepted is false the handle is InvalidResultHandle.
func (i *Inventory) GrantPromoItems() (bool, ResultHandle) {
	return i.submit("grant_promo_items", i.native.GrantPromoItems)
}

// GetAllItems starts a query for the user's full inventory.
func (i *Inventory) GetAllItems() (bool, ResultHandle) {
	return i.submit("get_all_items", i.native.GetAllItems)
}

func (i *Inventory) submit(op string, call func(*int32) bool) (bool, ResultHandle) {
	id := invalidResult
	if !call(&id) {
		i.log.WithField("op", op).Debug("native service rejected inventory request")
		return false, InvalidResultHandle
	}

	h := NewResultHandle(id)
	n := i.results.track(h)
	i.recorder.OutstandingResults(n)
	i.log.WithFields(logrus.Fields{"op": op, "handle": h.Raw()}).Debug("inventory request accepted")
	return true, h
}

// DestroyResult releases a handle. Releasing a handle twice, or one issued by
// another Inventory, is undefined on the native side and left to the caller;
// the wrapper only keeps its own bookkeeping consistent.
func (i *Inventory) DestroyResult(h ResultHandle) {
	if !h.Valid() {
		return
	}
	known, n := i.results.release(h)
	if !known {
		i.log.WithField("handle", h.Raw()).Warn("releasing a result handle that is not outstanding")
	}
	i.recorder.OutstandingResults(n)
	i.native.DestroyResult(h.Raw())
}

// CheckOwner reports whether the result set behind h belongs to owner.
func (i *Inventory) CheckOwner(h ResultHandle, owner SteamID) bool {
	if !h.Valid() {
		return false
	}
	return i.native.CheckResultSteamID(h.Raw(), uint64(owner))
}

// Outstanding lists handles that were issued and not yet released.
func (i *Inventory) Outstanding() []OutstandingResult {
	return i.results.outstanding()
}

// LoadItemDefinitions triggers a catalog (re)load. A DefinitionUpdateEvent
// follows once the catalog can be queried.
func (i *Inventory) LoadItemDefinitions() {
	if !i.native.LoadItemDefinitions() {
		i.log.Warn("native service refused to load item definitions")
	}
}

// GetItemDefinitions lists the catalog. It fails with ErrDefinitionsNotLoaded
// until the catalog has been loaded.
func (i *Inventory) GetItemDefinitions() ([]ItemDefinitionID, error) {
	ids, err := FetchSized(
		func() (uint32, bool) {
			var n uint32
			ok := i.native.GetItemDefinitionIDs(nil, &n)
			return n, ok
		},
		func(dst []int32) (uint32, bool) {
			n := uint32(len(dst))
			ok := i.native.GetItemDefinitionIDs(dst, &n)
			return n, ok
		},
		func(src []int32) ([]ItemDefinitionID, error) {
			out := make([]ItemDefinitionID, len(src))
			for k, v := range src {
				out[k] = NewItemDefinitionID(v)
			}
			return out, nil
		},
	)
	switch KindOf(err) {
	case "":
		return ids, nil
	case KindSizeQueryFailed:
		return nil, newError(KindDefinitionsNotLoaded, "get item definitions", "call LoadItemDefinitions and wait for the update event", nil)
	case KindFillFailed:
		i.log.WithError(err).Error("item definitions changed between count and fill")
	}
	return nil, err
}

// GetItemDefinitionProperty reads one string property of a catalog entry.
func (i *Inventory) GetItemDefinitionProperty(id ItemDefinitionID, name string) (string, error) {
	v, err := i.definitionProperty(id, name)
	if err != nil {
		i.logReadError("get item definition property", err, logrus.Fields{"definition": id.Raw(), "property": name})
		return "", err
	}
	return v, nil
}

// GetItemDefinitionPropertyNames lists the property names of a catalog entry.
func (i *Inventory) GetItemDefinitionPropertyNames(id ItemDefinitionID) ([]string, error) {
	v, err := i.definitionProperty(id, "")
	if err != nil {
		i.logReadError("get item definition property names", err, logrus.Fields{"definition": id.Raw()})
		return nil, err
	}

	names := make([]string, 0, strings.Count(v, ",")+1)
	for _, n := range strings.Split(v, ",") {
		if n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}

func (i *Inventory) definitionProperty(id ItemDefinitionID, name string) (string, error) {
	return FetchSized(
		func() (uint32, bool) {
			var n uint32
			ok := i.native.GetItemDefinitionProperty(id.Raw(), name, nil, &n)
			return n, ok
		},
		func(dst []byte) (uint32, bool) {
			n := uint32(len(dst))
			ok := i.native.GetItemDefinitionProperty(id.Raw(), name, dst, &n)
			return n, ok
		},
		DecodeCString,
	)
}

// GetResultItems reads the item list of a completed result.
func (i *Inventory) GetResultItems(h ResultHandle) ([]ItemDetails, error) {
	if !h.Valid() {
		return nil, newError(KindInvalidHandle, "get result items", h.String(), nil)
	}

	items, err := FetchSized(
		func() (uint32, bool) {
			var n uint32
			ok := i.native.GetResultItems(h.Raw(), nil, &n)
			return n, ok
		},
		func(dst []ItemDetails) (uint32, bool) {
			n := uint32(len(dst))
			ok := i.native.GetResultItems(h.Raw(), dst, &n)
			return n, ok
		},
		func(src []ItemDetails) ([]ItemDetails, error) {
			return src, nil
		},
	)
	if err != nil {
		i.logReadError("get result items", err, logrus.Fields{"handle": h.Raw()})
		return nil, err
	}
	return items, nil
}

func (i *Inventory) logReadError(op string, err error, fields logrus.Fields) {
	entry := i.log.WithFields(fields).WithError(err)
	if KindOf(err) == KindFillFailed {
		entry.Error(op + ": native two-phase contract violated")
		return
	}
	entry.Debug(op + " failed")
}

// ReportOutstanding logs handles issued more than olderThan ago and returns
// how many there are.
func (i *Inventory) ReportOutstanding(olderThan time.Duration) int {
	outstanding := i.results.outstanding()
	i.recorder.OutstandingResults(len(outstanding))

	cutoff := time.Now().Add(-olderThan)
	stale := 0
	for _, r := range outstanding {
		if r.IssuedAt.After(cutoff) {
			continue
		}
		stale++
		i.log.WithFields(logrus.Fields{
			"handle":    r.Handle.Raw(),
			"issued_at": r.IssuedAt,
		}).Warn("result handle outstanding for too long")
	}
	return stale
}

// Close reports handles that were never released. It does not release them.
func (i *Inventory) Close() {
	for _, r := range i.results.outstanding() {
		i.log.WithFields(logrus.Fields{
			"handle":    r.Handle.Raw(),
			"issued_at": r.IssuedAt,
		}).Warn("result handle was never released")
	}
}
