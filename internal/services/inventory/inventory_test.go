package inventory

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePump struct {
	handlers map[int32][]func(CallbackRecord)
}

func newFakePump() *fakePump {
	return &fakePump{handlers: make(map[int32][]func(CallbackRecord))}
}

func (p *fakePump) Register(tag int32, deliver func(CallbackRecord)) {
	p.handlers[tag] = append(p.handlers[tag], deliver)
}

func (p *fakePump) post(rec CallbackRecord) {
	for _, fn := range p.handlers[rec.Tag] {
		fn(rec)
	}
}

type fakeResult struct {
	owner uint64
	items []ItemDetails
}

type fakeNative struct {
	owner        uint64
	nextHandle   int32
	reject       bool
	loadPending  bool
	loaded       bool
	defs         map[int32]map[string]string
	results      map[int32]*fakeResult
	destroyed    []int32
	checked      []int32
	shrinkOnFill bool
}

func newFakeNative() *fakeNative {
	return &fakeNative{
		owner:   76561197960287930,
		defs:    make(map[int32]map[string]string),
		results: make(map[int32]*fakeResult),
	}
}

func (n *fakeNative) newResult(handle *int32, items []ItemDetails) bool {
	if n.reject {
		*handle = 99 // garbage the wrapper must not hand out
		return false
	}
	n.nextHandle++
	*handle = n.nextHandle
	n.results[n.nextHandle] = &fakeResult{owner: n.owner, items: items}
	return true
}

func (n *fakeNative) GrantPromoItems(handle *int32) bool {
	return n.newResult(handle, nil)
}

func (n *fakeNative) GetAllItems(handle *int32) bool {
	return n.newResult(handle, []ItemDetails{
		{InstanceID: 1001, Definition: NewItemDefinitionID(42), Quantity: 1},
		{InstanceID: 1002, Definition: NewItemDefinitionID(7), Quantity: 3, Flags: ItemNoTrade},
	})
}

func (n *fakeNative) GetResultItems(handle int32, dest []ItemDetails, size *uint32) bool {
	r, ok := n.results[handle]
	if !ok {
		return false
	}
	if dest == nil {
		*size = uint32(len(r.items))
		return true
	}
	if int(*size) < len(r.items) {
		return false
	}
	*size = uint32(copy(dest, r.items))
	return true
}

func (n *fakeNative) DestroyResult(handle int32) {
	n.destroyed = append(n.destroyed, handle)
	delete(n.results, handle)
}

func (n *fakeNative) CheckResultSteamID(handle int32, steamID uint64) bool {
	n.checked = append(n.checked, handle)
	r, ok := n.results[handle]
	return ok && r.owner == steamID
}

func (n *fakeNative) LoadItemDefinitions() bool {
	n.loadPending = true
	return true
}

// completeLoad finishes a pending catalog load the way the native side does:
// mark it loaded, then post the update record.
func (n *fakeNative) completeLoad(p *fakePump) {
	n.loadPending = false
	n.loaded = true
	p.post(EncodeDefinitionUpdate())
}

func (n *fakeNative) sortedDefs() []int32 {
	ids := make([]int32, 0, len(n.defs))
	for id := range n.defs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (n *fakeNative) GetItemDefinitionIDs(dest []int32, size *uint32) bool {
	if !n.loaded {
		return false
	}
	ids := n.sortedDefs()
	if dest == nil {
		*size = uint32(len(ids))
		return true
	}
	if n.shrinkOnFill {
		ids = ids[:len(ids)-1]
	}
	if int(*size) < len(ids) {
		return false
	}
	*size = uint32(copy(dest, ids))
	return true
}

func (n *fakeNative) GetItemDefinitionProperty(def int32, name string, dest []byte, size *uint32) bool {
	props, ok := n.defs[def]
	if !ok {
		return false
	}
	var value string
	if name == "" {
		names := make([]string, 0, len(props))
		for k := range props {
			names = append(names, k)
		}
		sort.Strings(names)
		value = strings.Join(names, ",")
	} else {
		value = props[name]
	}
	raw := EncodeCString(value)
	if dest == nil {
		*size = uint32(len(raw))
		return true
	}
	if int(*size) < len(raw) {
		return false
	}
	*size = uint32(copy(dest, raw))
	return true
}

func TestInventory_RequestsReturnHandlesImmediately(t *testing.T) {
	native := newFakeNative()
	inv, _, rec := newTestInventory(t, native)

	ok, promo := inv.GrantPromoItems()
	require.True(t, ok)
	ok, all := inv.GetAllItems()
	require.True(t, ok)

	assert.True(t, promo.Valid())
	assert.True(t, all.Valid())
	assert.NotEqual(t, promo, all)
	assert.Len(t, inv.Outstanding(), 2)
	assert.Equal(t, 2, rec.outstanding)
}

func TestInventory_RejectedRequestYieldsUnusableHandle(t *testing.T) {
	native := newFakeNative()
	native.reject = true
	inv, _, _ := newTestInventory(t, native)

	ok, h := inv.GetAllItems()
	assert.False(t, ok)
	assert.Equal(t, InvalidResultHandle, h)
	assert.False(t, h.Valid())

	assert.False(t, inv.CheckOwner(h, SteamID(native.owner)))
	inv.DestroyResult(h)
	assert.Empty(t, native.checked, "invalid handle reached CheckResultSteamID")
	assert.Empty(t, native.destroyed, "invalid handle reached DestroyResult")
	assert.Empty(t, inv.Outstanding())

	_, err := inv.GetResultItems(h)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestInventory_CheckOwner(t *testing.T) {
	native := newFakeNative()
	inv, _, _ := newTestInventory(t, native)

	_, h := inv.GetAllItems()
	assert.True(t, inv.CheckOwner(h, SteamID(native.owner)))
	assert.False(t, inv.CheckOwner(h, SteamID(native.owner+1)))
	assert.Len(t, inv.Outstanding(), 1, "CheckOwner must not mutate bookkeeping")
}

func TestInventory_DestroyResult(t *testing.T) {
	native := newFakeNative()
	inv, _, rec := newTestInventory(t, native)

	_, a := inv.GetAllItems()
	_, b := inv.GrantPromoItems()

	inv.DestroyResult(a)
	require.Len(t, inv.Outstanding(), 1)
	assert.Equal(t, b, inv.Outstanding()[0].Handle)
	assert.Equal(t, 1, rec.outstanding)

	// second release: bookkeeping stays consistent, native decides the rest
	inv.DestroyResult(a)
	assert.Len(t, inv.Outstanding(), 1)
	assert.Equal(t, []int32{a.Raw(), a.Raw()}, native.destroyed)
}

func TestInventory_GetResultItems(t *testing.T) {
	native := newFakeNative()
	inv, pump, _ := newTestInventory(t, native)

	var done []ResultReadyEvent
	inv.OnResultReady(func(ev ResultReadyEvent) { done = append(done, ev) })

	ok, h := inv.GetAllItems()
	require.True(t, ok)
	pump.post(EncodeResultReady(h, ResultOK))
	require.Len(t, done, 1)
	assert.Equal(t, h, done[0].Handle)

	items, err := inv.GetResultItems(h)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, NewItemDefinitionID(42), items[0].Definition)
	assert.Equal(t, uint16(3), items[1].Quantity)
	assert.Equal(t, ItemNoTrade, items[1].Flags)

	inv.DestroyResult(h)
	_, err = inv.GetResultItems(h)
	assert.ErrorIs(t, err, ErrSizeQueryFailed)
}

func TestInventory_DefinitionsBeforeLoad(t *testing.T) {
	native := newFakeNative()
	native.defs[42] = map[string]string{"name": "Sword"}
	inv, pump, _ := newTestInventory(t, native)

	_, err := inv.GetItemDefinitions()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDefinitionsNotLoaded)

	updated := false
	inv.OnDefinitionUpdate(func(DefinitionUpdateEvent) { updated = true })

	inv.LoadItemDefinitions()
	assert.True(t, native.loadPending)
	native.completeLoad(pump)
	require.True(t, updated)

	ids, err := inv.GetItemDefinitions()
	require.NoError(t, err)
	assert.Equal(t, []ItemDefinitionID{NewItemDefinitionID(42)}, ids)
}

func TestInventory_EmptyCatalog(t *testing.T) {
	native := newFakeNative()
	inv, pump, _ := newTestInventory(t, native)

	inv.LoadItemDefinitions()
	native.completeLoad(pump)

	ids, err := inv.GetItemDefinitions()
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestInventory_DefinitionsShrinkBetweenCalls(t *testing.T) {
	native := newFakeNative()
	native.defs[1] = map[string]string{}
	native.defs[2] = map[string]string{}
	native.loaded = true
	native.shrinkOnFill = true
	inv, _, _ := newTestInventory(t, native)

	if contractChecks {
		assert.Panics(t, func() { _, _ = inv.GetItemDefinitions() })
		return
	}
	_, err := inv.GetItemDefinitions()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFillFailed)
}

func TestInventory_GetItemDefinitionProperty(t *testing.T) {
	native := newFakeNative()
	native.defs[42] = map[string]string{"name": "Sword", "type": "item", "empty": ""}
	native.loaded = true
	inv, _, _ := newTestInventory(t, native)

	name, err := inv.GetItemDefinitionProperty(NewItemDefinitionID(42), "name")
	require.NoError(t, err)
	assert.Equal(t, "Sword", name)

	empty, err := inv.GetItemDefinitionProperty(NewItemDefinitionID(42), "empty")
	require.NoError(t, err)
	assert.Equal(t, "", empty)

	_, err = inv.GetItemDefinitionProperty(NewItemDefinitionID(404), "name")
	assert.ErrorIs(t, err, ErrSizeQueryFailed)

	names, err := inv.GetItemDefinitionPropertyNames(NewItemDefinitionID(42))
	require.NoError(t, err)
	assert.Equal(t, []string{"empty", "name", "type"}, names)
}

func TestInventory_Close(t *testing.T) {
	native := newFakeNative()
	inv, _, _ := newTestInventory(t, native)

	_, h := inv.GetAllItems()
	inv.Close()
	assert.Len(t, inv.Outstanding(), 1, "Close only reports leaks")
	assert.Empty(t, native.destroyed)
	inv.DestroyResult(h)
}

func TestInventory_ReportOutstanding(t *testing.T) {
	native := newFakeNative()
	inv, _, rec := newTestInventory(t, native)

	_, a := inv.GetAllItems()
	_, _ = inv.GrantPromoItems()
	inv.DestroyResult(a)

	assert.Zero(t, inv.ReportOutstanding(time.Hour))
	assert.Equal(t, 1, inv.ReportOutstanding(0))
	assert.Equal(t, 1, rec.outstanding)
}

func TestParseHandles(t *testing.T) {
	h, err := ParseResultHandle("12")
	require.NoError(t, err)
	assert.Equal(t, NewResultHandle(12), h)

	_, err = ParseResultHandle("x")
	assert.Error(t, err)

	d, err := ParseItemDefinitionID("42")
	require.NoError(t, err)
	assert.Equal(t, "42", d.String())

	s, err := ParseSteamID("76561197960287930")
	require.NoError(t, err)
	assert.Equal(t, "76561197960287930", s.String())
}

func TestResultHandle_ZeroValueIsInvalid(t *testing.T) {
	var h ResultHandle
	assert.False(t, h.Valid())
	assert.Equal(t, InvalidResultHandle, h)
	assert.Equal(t, int32(-1), h.Raw())
	assert.Equal(t, InvalidResultHandle, NewResultHandle(-1))

	assert.True(t, NewResultHandle(0).Valid())
	assert.Equal(t, int32(0), NewResultHandle(0).Raw())

	native := newFakeNative()
	inv, _, _ := newTestInventory(t, native)
	_, err := inv.GetResultItems(h)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	inv.DestroyResult(h)
	assert.Empty(t, native.destroyed)
}

func TestResultHandle_JSON(t *testing.T) {
	in := OutstandingResult{Handle: NewResultHandle(7), IssuedAt: time.Unix(1700000000, 0).UTC()}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"handle":7,"issued_at":"2023-11-14T22:13:20Z"}`, string(raw))

	var out OutstandingResult
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)

	var h ResultHandle
	require.NoError(t, json.Unmarshal([]byte("-1"), &h))
	assert.False(t, h.Valid())
	assert.Error(t, json.Unmarshal([]byte(`"x"`), &h))
}
