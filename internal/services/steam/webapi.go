package steam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"steam-inventory/internal/services/inventory"
)

const defaultBaseURL = "https://api.steampowered.com"

// apiError is a non-2xx answer from the Web API.
type apiError struct {
	Endpoint string
	Status   int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("steam API error: %s returned %d", e.Endpoint, e.Status)
}

type webAPI struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	apiKey  string
	appID   string
	metrics RequestRecorder
}

func newWebAPI(cfg Config, metrics RequestRecorder, log *logrus.Entry) *webAPI {
	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("User-Agent", "steam-inventory/1.0")
	client.SetBaseURL(cfg.BaseURL)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "steam-webapi",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// a 4xx is the caller's fault, not the service's
			var apiErr *apiError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError && apiErr.Status != http.StatusTooManyRequests
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
			metrics.SetBreakerState(int(to))
		},
	})

	return &webAPI{
		client:  client,
		breaker: breaker,
		apiKey:  cfg.APIKey,
		appID:   strconv.FormatUint(uint64(cfg.AppID), 10),
		metrics: metrics,
	}
}

// call runs one request through the circuit breaker and returns the body.
func (w *webAPI) call(ctx context.Context, endpoint string, req func(*resty.Request) (*resty.Response, error)) ([]byte, error) {
	body, err := w.breaker.Execute(func() (interface{}, error) {
		resp, err := req(w.client.R().SetContext(ctx))
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, &apiError{Endpoint: endpoint, Status: resp.StatusCode()}
		}
		return resp.Body(), nil
	})

	w.metrics.WebAPIRequest(endpoint, requestStatus(err))
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

func requestStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return strconv.Itoa(apiErr.Status)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "breaker_open"
	}
	return "error"
}

// resultCode maps a request failure to the code reported in the
// ResultReady record.
func resultCode(err error) inventory.EResult {
	if err == nil {
		return inventory.ResultOK
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return inventory.ResultServiceUnavailable
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusTooManyRequests:
			return inventory.ResultLimitExceeded
		case apiErr.Status >= http.StatusInternalServerError:
			return inventory.ResultServiceUnavailable
		case apiErr.Status == http.StatusBadRequest:
			return inventory.ResultInvalidParam
		}
		return inventory.ResultFail
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return inventory.ResultTimeout
	}
	return inventory.ResultFail
}

type itemDefMetaResponse struct {
	Response struct {
		Modified int64  `json:"modified"`
		Digest   string `json:"digest"`
	} `json:"response"`
}

func (w *webAPI) itemDefDigest(ctx context.Context) (string, error) {
	body, err := w.call(ctx, "GetItemDefMeta", func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"key":   w.apiKey,
			"appid": w.appID,
		}).Get("/IGameInventory/GetItemDefMeta/v1/")
	})
	if err != nil {
		return "", err
	}

	var meta itemDefMetaResponse
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", fmt.Errorf("decode item def meta: %w", err)
	}
	if meta.Response.Digest == "" {
		return "", errors.New("steam API error: empty item definition digest")
	}
	return meta.Response.Digest, nil
}

// itemDefArchive fetches the catalog and flattens every property to a string.
func (w *webAPI) itemDefArchive(ctx context.Context, digest string) (map[int32]map[string]string, error) {
	body, err := w.call(ctx, "GetItemDefArchive", func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"appid":  w.appID,
			"digest": digest,
		}).Get("/IGameInventory/GetItemDefArchive/v1/")
	})
	if err != nil {
		return nil, err
	}

	// the archive is served NUL terminated
	body = bytes.TrimRight(body, "\x00")

	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode item def archive: %w", err)
	}
	return flattenDefinitions(raw)
}

func flattenDefinitions(raw []map[string]json.RawMessage) (map[int32]map[string]string, error) {
	defs := make(map[int32]map[string]string, len(raw))
	for _, entry := range raw {
		idRaw, ok := entry["itemdefid"]
		if !ok {
			return nil, errors.New("item definition without itemdefid")
		}
		id, err := parseInt32(idRaw)
		if err != nil {
			return nil, fmt.Errorf("itemdefid: %w", err)
		}

		props := make(map[string]string, len(entry))
		for name, value := range entry {
			props[name] = propertyString(value)
		}
		defs[id] = props
	}
	return defs, nil
}

// propertyString returns JSON strings unquoted and anything else verbatim.
func propertyString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(v))
}

func parseInt32(v json.RawMessage) (int32, error) {
	n, err := strconv.ParseInt(propertyString(v), 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}

type inventoryResponse struct {
	Response struct {
		ItemJSON string `json:"item_json"`
	} `json:"response"`
}

type webItem struct {
	ItemID    json.RawMessage `json:"itemid"`
	ItemDefID json.RawMessage `json:"itemdefid"`
	Quantity  json.RawMessage `json:"quantity"`
	State     string          `json:"state"`
}

func decodeItems(body []byte) ([]inventory.ItemDetails, error) {
	var resp inventoryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode inventory response: %w", err)
	}
	if resp.Response.ItemJSON == "" {
		return []inventory.ItemDetails{}, nil
	}

	var raw []webItem
	if err := json.Unmarshal([]byte(resp.Response.ItemJSON), &raw); err != nil {
		return nil, fmt.Errorf("decode item_json: %w", err)
	}

	items := make([]inventory.ItemDetails, 0, len(raw))
	for _, it := range raw {
		instance, err := strconv.ParseUint(propertyString(it.ItemID), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("itemid: %w", err)
		}
		def, err := parseInt32(it.ItemDefID)
		if err != nil {
			return nil, fmt.Errorf("itemdefid: %w", err)
		}
		qty := uint64(1)
		if len(it.Quantity) > 0 {
			qty, err = strconv.ParseUint(propertyString(it.Quantity), 10, 16)
			if err != nil {
				return nil, fmt.Errorf("quantity: %w", err)
			}
		}
		items = append(items, inventory.ItemDetails{
			InstanceID: instance,
			Definition: inventory.NewItemDefinitionID(def),
			Quantity:   uint16(qty),
			Flags:      stateFlags(it.State),
		})
	}
	return items, nil
}

func stateFlags(state string) uint16 {
	switch state {
	case "notrade":
		return inventory.ItemNoTrade
	case "removed":
		return inventory.ItemRemoved
	case "consumed":
		return inventory.ItemConsumed
	}
	return 0
}

func (w *webAPI) playerInventory(ctx context.Context, steamID uint64) ([]inventory.ItemDetails, error) {
	body, err := w.call(ctx, "GetInventory", func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"key":     w.apiKey,
			"appid":   w.appID,
			"steamid": strconv.FormatUint(steamID, 10),
		}).Get("/IInventoryService/GetInventory/v1/")
	})
	if err != nil {
		return nil, err
	}
	return decodeItems(body)
}

func (w *webAPI) addPromoItem(ctx context.Context, steamID uint64, def int32) ([]inventory.ItemDetails, error) {
	body, err := w.call(ctx, "AddPromoItem", func(r *resty.Request) (*resty.Response, error) {
		return r.SetFormData(map[string]string{
			"key":       w.apiKey,
			"appid":     w.appID,
			"itemdefid": strconv.FormatInt(int64(def), 10),
			"steamid":   strconv.FormatUint(steamID, 10),
		}).Post("/IInventoryService/AddPromoItem/v1/")
	})
	if err != nil {
		return nil, err
	}
	return decodeItems(body)
}

func defaultTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}
