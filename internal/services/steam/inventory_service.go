package steam

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"steam-inventory/internal/services/inventory"
)

type Config struct {
	APIKey          string
	AppID           uint32
	SteamID         uint64
	BaseURL         string
	Timeout         time.Duration
	BreakerTimeout  time.Duration
	BreakerFailures uint32
}

// Poster accepts completion records for later delivery.
type Poster interface {
	Post(rec inventory.CallbackRecord) bool
}

// DefinitionCache persists the item catalog between runs.
type DefinitionCache interface {
	SaveDefinitions(digest string, defs map[int32]map[string]string) error
	LoadDefinitions() (string, map[int32]map[string]string, error)
}

// RequestRecorder counts Web API requests by endpoint and outcome and tracks
// the circuit breaker state.
type RequestRecorder interface {
	WebAPIRequest(endpoint, status string)
	SetBreakerState(state int)
}

var errNoCache = errors.New("item definition cache is empty")

var _ inventory.Native = (*InventoryService)(nil)

type nopRequests struct{}

func (nopRequests) WebAPIRequest(string, string) {}
func (nopRequests) SetBreakerState(int)          {}

type result struct {
	owner  uint64
	done   bool
	status inventory.EResult
	items  []inventory.ItemDetails
}

// InventoryService is an inventory.Native backed by the Steam Web API.
// Requests run in the background and report completion by posting callback
// records, the same way the client library reports them.
type InventoryService struct {
	cfg   Config
	api   *webAPI
	pump  Poster
	cache DefinitionCache
	log   *logrus.Entry

	nextHandle atomic.Int32
	loading    atomic.Bool

	mu      sync.RWMutex
	results map[int32]*result
	loaded  bool
	digest  string
	defs    map[int32]map[string]string
	defIDs  []int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewInventoryService(cfg Config, pump Poster, cache DefinitionCache, metrics RequestRecorder, log *logrus.Entry) *InventoryService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.Timeout = defaultTimeout(cfg.Timeout)
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if metrics == nil {
		metrics = nopRequests{}
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &InventoryService{
		cfg:     cfg,
		api:     newWebAPI(cfg, metrics, log),
		pump:    pump,
		cache:   cache,
		log:     log,
		results: make(map[int32]*result),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Close cancels in-flight requests and waits for their goroutines.
func (s *InventoryService) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every background request has posted its records.
func (s *InventoryService) Wait() {
	s.wg.Wait()
}

func (s *InventoryService) background(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func (s *InventoryService) newResult() int32 {
	h := s.nextHandle.Add(1)
	s.mu.Lock()
	s.results[h] = &result{owner: s.cfg.SteamID}
	s.mu.Unlock()
	return h
}

func (s *InventoryService) finish(h int32, items []inventory.ItemDetails, err error) inventory.EResult {
	status := resultCode(err)

	s.mu.Lock()
	if r, ok := s.results[h]; ok {
		r.done = true
		r.status = status
		r.items = items
	}
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"handle": h, "result": status.String()}).Warn("inventory request failed")
	}
	s.pump.Post(inventory.EncodeResultReady(inventory.NewResultHandle(h), status))
	return status
}

func (s *InventoryService) GetAllItems(handle *int32) bool {
	h := s.newResult()
	*handle = h

	s.background(func(ctx context.Context) {
		items, err := s.api.playerInventory(ctx, s.cfg.SteamID)
		if s.finish(h, items, err).OK() {
			s.pump.Post(inventory.EncodeFullUpdate(inventory.NewResultHandle(h)))
		}
	})
	return true
}

// GrantPromoItems grants every catalog entry carrying a promo property. It is
// rejected until the catalog is loaded.
func (s *InventoryService) GrantPromoItems(handle *int32) bool {
	s.mu.RLock()
	loaded := s.loaded
	var promos []int32
	for _, id := range s.defIDs {
		if s.defs[id]["promo"] != "" {
			promos = append(promos, id)
		}
	}
	s.mu.RUnlock()

	if !loaded {
		return false
	}

	h := s.newResult()
	*handle = h

	s.background(func(ctx context.Context) {
		granted := []inventory.ItemDetails{}
		var firstErr error
		for _, def := range promos {
			items, err := s.api.addPromoItem(ctx, s.cfg.SteamID, def)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			granted = append(granted, items...)
		}
		s.finish(h, granted, firstErr)
	})
	return true
}

// GetResultItems is only answered for results that completed successfully.
func (s *InventoryService) GetResultItems(handle int32, dest []inventory.ItemDetails, size *uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[handle]
	if !ok || !r.done || !r.status.OK() {
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

func (s *InventoryService) DestroyResult(handle int32) {
	s.mu.Lock()
	delete(s.results, handle)
	s.mu.Unlock()
}

func (s *InventoryService) CheckResultSteamID(handle int32, steamID uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[handle]
	return ok && r.owner == steamID
}

// LoadItemDefinitions fetches the catalog in the background. Concurrent
// calls while a load is running are folded into it.
func (s *InventoryService) LoadItemDefinitions() bool {
	if !s.loading.CompareAndSwap(false, true) {
		return true
	}

	s.background(func(ctx context.Context) {
		defer s.loading.Store(false)

		digest, defs, err := s.fetchDefinitions(ctx)
		if err != nil {
			s.log.WithError(err).Warn("item definition fetch failed, trying cache")
			digest, defs, err = s.cachedDefinitions()
			if err != nil {
				s.log.WithError(err).Error("no item definitions available")
				return
			}
		}

		s.setDefinitions(digest, defs)
		s.log.WithFields(logrus.Fields{"digest": digest, "definitions": len(defs)}).Info("item definitions loaded")
		s.pump.Post(inventory.EncodeDefinitionUpdate())
	})
	return true
}

func (s *InventoryService) fetchDefinitions(ctx context.Context) (string, map[int32]map[string]string, error) {
	digest, err := s.api.itemDefDigest(ctx)
	if err != nil {
		return "", nil, err
	}

	s.mu.RLock()
	if s.loaded && s.digest == digest {
		defs := s.defs
		s.mu.RUnlock()
		return digest, defs, nil
	}
	s.mu.RUnlock()

	defs, err := s.api.itemDefArchive(ctx, digest)
	if err != nil {
		return "", nil, err
	}
	if s.cache != nil {
		if err := s.cache.SaveDefinitions(digest, defs); err != nil {
			s.log.WithError(err).Warn("failed to cache item definitions")
		}
	}
	return digest, defs, nil
}

func (s *InventoryService) cachedDefinitions() (string, map[int32]map[string]string, error) {
	if s.cache == nil {
		return "", nil, errNoCache
	}
	digest, defs, err := s.cache.LoadDefinitions()
	if err != nil {
		return "", nil, err
	}
	if len(defs) == 0 {
		return "", nil, errNoCache
	}
	return digest, defs, nil
}

func (s *InventoryService) setDefinitions(digest string, defs map[int32]map[string]string) {
	ids := make([]int32, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	s.mu.Lock()
	s.loaded = true
	s.digest = digest
	s.defs = defs
	s.defIDs = ids
	s.mu.Unlock()
}

func (s *InventoryService) GetItemDefinitionIDs(dest []int32, size *uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return false
	}
	if dest == nil {
		*size = uint32(len(s.defIDs))
		return true
	}
	if int(*size) < len(s.defIDs) {
		return false
	}
	*size = uint32(copy(dest, s.defIDs))
	return true
}

// GetItemDefinitionProperty writes the NUL terminated value of name. An
// empty name yields the comma separated list of property names.
func (s *InventoryService) GetItemDefinitionProperty(def int32, name string, dest []byte, size *uint32) bool {
	s.mu.RLock()
	props, ok := s.defs[def]
	s.mu.RUnlock()
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

	raw := inventory.EncodeCString(value)
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
