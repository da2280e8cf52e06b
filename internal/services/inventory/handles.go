package inventory

import (
	"fmt"
	"strconv"
)

const invalidResult int32 = -1

// ResultHandle identifies a pending or completed inventory query.
// It is a plain value: safe to copy, compare and pass across goroutines.
// The zero value is InvalidResultHandle.
type ResultHandle struct {
	// native id plus one
	v int64
}

// InvalidResultHandle is returned when the native service rejects a request.
var InvalidResultHandle = ResultHandle{}

// NewResultHandle wraps a native result id. The native invalid id (-1)
// maps to InvalidResultHandle.
func NewResultHandle(id int32) ResultHandle {
	return ResultHandle{v: int64(id) + 1}
}

// Valid reports whether the handle can be used for lookups or release.
func (h ResultHandle) Valid() bool {
	return h.v != 0
}

// Raw returns the native result id. Only transports should need it.
func (h ResultHandle) Raw() int32 {
	return int32(h.v - 1)
}

func (h ResultHandle) String() string {
	if !h.Valid() {
		return "result(invalid)"
	}
	return fmt.Sprintf("result(%d)", h.Raw())
}

func (h ResultHandle) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(h.Raw()), 10)), nil
}

func (h *ResultHandle) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseInt(string(b), 10, 32)
	if err != nil {
		return fmt.Errorf("result handle: %w", err)
	}
	*h = NewResultHandle(int32(v))
	return nil
}

// ParseResultHandle parses the decimal form produced by Raw.
func ParseResultHandle(s string) (ResultHandle, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return InvalidResultHandle, fmt.Errorf("parse result handle %q: %w", s, err)
	}
	return NewResultHandle(int32(v)), nil
}

// ItemDefinitionID identifies an entry of the item catalog.
type ItemDefinitionID struct {
	id int32
}

func NewItemDefinitionID(id int32) ItemDefinitionID {
	return ItemDefinitionID{id: id}
}

func (d ItemDefinitionID) Raw() int32 {
	return d.id
}

func (d ItemDefinitionID) String() string {
	return strconv.FormatInt(int64(d.id), 10)
}

func (d ItemDefinitionID) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *ItemDefinitionID) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseInt(string(b), 10, 32)
	if err != nil {
		return fmt.Errorf("item definition id: %w", err)
	}
	d.id = int32(v)
	return nil
}

// ParseItemDefinitionID parses a decimal item definition id.
func ParseItemDefinitionID(s string) (ItemDefinitionID, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return ItemDefinitionID{}, fmt.Errorf("parse item definition %q: %w", s, err)
	}
	return NewItemDefinitionID(int32(v)), nil
}

// SteamID is the 64-bit identity a result set can be scoped to.
type SteamID uint64

func ParseSteamID(s string) (SteamID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse steam id %q: %w", s, err)
	}
	return SteamID(v), nil
}

func (s SteamID) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// ItemDetails is one element of a result's item list.
type ItemDetails struct {
	InstanceID uint64           `json:"instance_id"`
	Definition ItemDefinitionID `json:"definition"`
	Quantity   uint16           `json:"quantity"`
	Flags      uint16           `json:"flags"`
}

// Item flags reported by the native service.
const (
	ItemNoTrade  uint16 = 1 << 0
	ItemRemoved  uint16 = 1 << 8
	ItemConsumed uint16 = 1 << 9
)

// EResult is the native outcome code carried by a ResultReadyEvent.
type EResult int32

const (
	ResultOK                 EResult = 1
	ResultFail               EResult = 2
	ResultInvalidParam       EResult = 8
	ResultTimeout            EResult = 16
	ResultServiceUnavailable EResult = 20
	ResultLimitExceeded      EResult = 25
	ResultExpired            EResult = 27
)

var resultNames = map[EResult]string{
	ResultOK:                 "OK",
	ResultFail:               "Fail",
	ResultInvalidParam:       "InvalidParam",
	ResultTimeout:            "Timeout",
	ResultServiceUnavailable: "ServiceUnavailable",
	ResultLimitExceeded:      "LimitExceeded",
	ResultExpired:            "Expired",
}

func (r EResult) OK() bool {
	return r == ResultOK
}

func (r EResult) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("EResult(%d)", int32(r))
}
