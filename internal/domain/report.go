package domain

import "time"

// Report status values, resolved and dismissed are terminal
const (
	ReportPending   = "pending"
	ReportReviewed  = "reviewed"
	ReportResolved  = "resolved"
	ReportDismissed = "dismissed"
)

// Report reasons
const (
	ReasonPackaging    = "packaging"
	ReasonQuality      = "quality"
	ReasonSideEffects  = "side_effects"
	ReasonPrice        = "price"
	ReasonUnregistered = "unregistered"
	ReasonOther        = "other"
)

var ReportReasons = []string{ReasonPackaging, ReasonQuality, ReasonSideEffects, ReasonPrice, ReasonUnregistered, ReasonOther}

// Report a counterfeit suspicion. BatchID stays nil when nothing could be matched.
type Report struct {
	ID           int64     `json:"id,string" gorm:"primaryKey"`
	BatchID      *int64    `json:"medicine_id,string,omitempty" gorm:"index"`
	QRPayload    string    `json:"qr_code_data,omitempty" gorm:"type:text"`
	MedicineName string    `json:"medicine_name,omitempty" gorm:"size:200"`
	BatchNumber  string    `json:"batch_number,omitempty" gorm:"size:100"`
	Reason       string    `json:"reason" gorm:"size:32"`
	Description  string    `json:"description,omitempty" gorm:"type:text"`
	Location     string    `json:"location,omitempty" gorm:"size:200"`
	ReporterID   *int64    `json:"reporter_id,string,omitempty" gorm:"index"`
	Status       string    `json:"status" gorm:"size:20;index"`
	ReviewedBy   *int64    `json:"reviewed_by,string,omitempty"`
	ReviewNotes  string    `json:"review_notes,omitempty" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Report) TableName() string {
	return "reports"
}

// PublicReport report without reviewer and reporter fields
type PublicReport struct {
	ID           int64     `json:"id,string"`
	CreatedAt    time.Time `json:"created_at"`
	MedicineName string    `json:"medicine_name"`
	BatchNumber  string    `json:"batch_number,omitempty"`
	Reason       string    `json:"reason"`
	Location     string    `json:"location,omitempty"`
	Status       string    `json:"status"`
	Description  string    `json:"description,omitempty"`
}

// ManufacturerReport report with the batch it was matched to
type ManufacturerReport struct {
	Report
	MatchedBy string `json:"matched_by"` // batch_id, batch_number or medicine_name
	Batch     *Batch `json:"medicine"`
}
