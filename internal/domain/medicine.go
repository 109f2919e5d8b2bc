package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Medicine types accepted for a batch
const (
	MedicineTablet    = "tablet"
	MedicineCapsule   = "capsule"
	MedicineSyrup     = "syrup"
	MedicineInjection = "injection"
	MedicineOintment  = "ointment"
)

var MedicineTypes = []string{MedicineTablet, MedicineCapsule, MedicineSyrup, MedicineInjection, MedicineOintment}

// Unit status values
const (
	UnitMinted   = "minted"
	UnitSold     = "sold"
	UnitConsumed = "consumed"
)

// MaxUnitsPerBatch caps how many units are generated for one batch
const MaxUnitsPerBatch = 100

// Batch one manufacturing run, anchored by an NFT token id.
// TokenID never changes after insert; IsActive is the only authenticity field that does.
type Batch struct {
	ID                int64           `json:"id,string" gorm:"primaryKey"`
	TokenID           string          `json:"token_id" gorm:"size:128;uniqueIndex"`
	MedicineName      string          `json:"medicine_name" gorm:"size:200;index"`
	ManufacturerID    int64           `json:"manufacturer_id,string" gorm:"index"`
	ManufacturerName  string          `json:"manufacturer_name" gorm:"size:200"`
	BatchNumber       string          `json:"batch_number" gorm:"size:100;index"`
	MedicineType      string          `json:"medicine_type" gorm:"size:32"`
	ManufacturingDate string          `json:"manufacturing_date" gorm:"size:32"`
	ExpiryDate        string          `json:"expiry_date" gorm:"size:32"`
	MRP               decimal.Decimal `json:"mrp" gorm:"type:numeric(12,2)"`
	Quantity          int             `json:"quantity"`
	QRPayload         string          `json:"qr_payload" gorm:"type:text;index"`
	TransactionHash   string          `json:"transaction_hash" gorm:"size:66"`
	ContractAddress   string          `json:"contract_address" gorm:"size:66"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName Specify table name
func (Batch) TableName() string {
	return "medicines"
}

// Unit one scannable item of a batch, TokenID is "<batch token id>-<serial>"
type Unit struct {
	ID           int64     `json:"id,string" gorm:"primaryKey"`
	BatchID      int64     `json:"batch_id,string" gorm:"index"`
	TokenID      string    `json:"token_id" gorm:"size:160;uniqueIndex"`
	SerialNumber int       `json:"serial_number"`
	QRPayload    string    `json:"qr_payload" gorm:"type:text;index"`
	IsVerified   bool      `json:"is_verified"`
	Status       string    `json:"status" gorm:"size:20"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName Specify table name
func (Unit) TableName() string {
	return "medicine_units"
}

// BatchView a batch with the unit that matched a lookup, if any
type BatchView struct {
	Batch
	Unit *Unit `json:"unit,omitempty"`
}
