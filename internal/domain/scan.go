package domain

import "time"

const (
	ScanGenuine     = "genuine"
	ScanCounterfeit = "counterfeit"
)

// ScanRecord one verification attempt. Rows are append-only.
// BatchID is zero for chain-only verifications that have no registry row.
type ScanRecord struct {
	ID              int64     `json:"id,string" gorm:"primaryKey"`
	BatchID         int64     `json:"batch_id,string" gorm:"index"`
	UnitID          *int64    `json:"unit_id,string,omitempty"`
	TokenID         string    `json:"token_id" gorm:"size:160"`
	ContractAddress string    `json:"contract_address" gorm:"size:66"`
	UserID          *int64    `json:"user_id,string,omitempty" gorm:"index"`
	Result          string    `json:"result" gorm:"size:20"`
	Location        string    `json:"location,omitempty"`
	DeviceInfo      string    `json:"device_info,omitempty"`
	IPAddress       string    `json:"ip_address,omitempty" gorm:"size:64"`
	CreatedAt       time.Time `json:"created_at" gorm:"index"`
}

// TableName Specify table name
func (ScanRecord) TableName() string {
	return "scan_history"
}

// ScanView a scan joined with its batch, Batch is nil when the batch was deleted
type ScanView struct {
	ScanRecord
	MedicineName string `json:"medicine_name"`
	Batch        *Batch `json:"medicine"`
}

// ScanStats per-batch counts
type ScanStats struct {
	TotalScans       int64 `json:"total_scans"`
	GenuineScans     int64 `json:"genuine_scans"`
	CounterfeitScans int64 `json:"counterfeit_scans"`
}

// ManufacturerStats dashboard aggregate
type ManufacturerStats struct {
	TotalMedicines  int64 `json:"total_medicines"`
	ActiveMedicines int64 `json:"active_medicines"`
	TotalScans      int64 `json:"total_scans"`
	RecentReports   int64 `json:"recent_reports"`
}
