package identity

import (
	"bytes"
	stdjson "encoding/json"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UnitQR content printed on one unit
type UnitQR struct {
	ID       string `json:"id"`
	Batch    string `json:"batch"`
	Contract string `json:"contract"`
	Unit     int    `json:"unit"`
}

// BatchQR content printed on a batch carton
type BatchQR struct {
	ID    string `json:"id"`
	Batch string `json:"batch"`
	Name  string `json:"name,omitempty"`
}

// EncodeUnitQR renders {"id","batch","contract","unit"} in that key order
func EncodeUnitQR(unitTokenID, batchNumber, contract string, serial int) string {
	data, _ := json.Marshal(UnitQR{ID: unitTokenID, Batch: batchNumber, Contract: contract, Unit: serial})
	return string(data)
}

// EncodeBatchQR renders {"id","batch","name"}
func EncodeBatchQR(batchTokenID, batchNumber, medicineName string) string {
	data, _ := json.Marshal(BatchQR{ID: batchTokenID, Batch: batchNumber, Name: medicineName})
	return string(data)
}

// VerificationURL renders <origin>/verify?contract=<address>&tokenId=<id>
func VerificationURL(origin, contract, tokenID string) string {
	return strings.TrimRight(origin, "/") + "/verify?contract=" + contract + "&tokenId=" + url.QueryEscape(tokenID)
}

type PayloadKind int

const (
	PayloadInvalid PayloadKind = iota
	PayloadURL
	PayloadUnit
	PayloadBatch
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadURL:
		return "url"
	case PayloadUnit:
		return "unit"
	case PayloadBatch:
		return "batch"
	default:
		return "invalid"
	}
}

// Payload the classified content of a scanned code
type Payload struct {
	Kind        PayloadKind
	Raw         string
	TokenID     string
	Contract    string
	BatchNumber string
	Serial      int
}

// rawQR accepts loosely typed scans. id, batch and contract may arrive as
// strings or numbers, unit as a number or a numeric string.
type rawQR struct {
	ID       scalar         `json:"id"`
	Batch    scalar         `json:"batch"`
	Contract scalar         `json:"contract"`
	Unit     stdjson.Number `json:"unit"`
}

// scalar a string or number field, set is false when absent or null
type scalar struct {
	set bool
	val string
}

func (s *scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	switch c := data[0]; {
	case c == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s.set, s.val = true, strings.TrimSpace(str)
	case c == '-' || (c >= '0' && c <= '9'):
		var n stdjson.Number
		if err := stdjson.Unmarshal(data, &n); err != nil {
			return err
		}
		s.set, s.val = true, n.String()
	default:
		return errors.Errorf("unexpected qr field %s", data)
	}
	return nil
}

// ParsePayload classifies raw scanned text. Anything that is neither a verification
// URL nor a JSON object with id, batch or contract is PayloadInvalid.
func ParsePayload(raw string) Payload {
	text := strings.TrimSpace(raw)
	p := Payload{Raw: text}
	if text == "" {
		return p
	}

	if strings.Contains(text, "/verify?") {
		return parseVerifyURL(text)
	}

	if !strings.HasPrefix(text, "{") {
		return p
	}
	var q rawQR
	if err := json.UnmarshalFromString(text, &q); err != nil {
		return p
	}
	if !q.ID.set && !q.Batch.set && !q.Contract.set {
		return p
	}

	p.TokenID = q.ID.val
	p.BatchNumber = q.Batch.val
	p.Contract = q.Contract.val
	if n, err := q.Unit.Int64(); err == nil && n > 0 {
		p.Serial = int(n)
	}
	p.Kind = PayloadBatch
	if p.Serial > 0 || IsUnitID(p.TokenID) {
		p.Kind = PayloadUnit
		if p.Serial == 0 {
			_, p.Serial, _ = SplitUnitID(p.TokenID)
		}
	}
	return p
}

func parseVerifyURL(text string) Payload {
	p := Payload{Raw: text}
	idx := strings.Index(text, "/verify?")
	values, err := url.ParseQuery(text[idx+len("/verify?"):])
	if err != nil {
		return p
	}
	tokenID := strings.TrimSpace(values.Get("tokenId"))
	if tokenID == "" {
		return p
	}
	p.Kind = PayloadURL
	p.TokenID = tokenID
	p.Contract = strings.TrimSpace(values.Get("contract"))
	if _, serial, ok := SplitUnitID(tokenID); ok {
		p.Serial = serial
	}
	return p
}

// BatchTokenID the batch-level token id the payload points at
func (p Payload) BatchTokenID() string {
	return UnitIDToBatchID(p.TokenID)
}

// IsUnitScoped reports whether the payload names a single unit
func (p Payload) IsUnitScoped() bool {
	return IsUnitID(p.TokenID)
}
