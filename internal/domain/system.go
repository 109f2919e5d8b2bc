package domain

import (
	"time"
)

// Manufacturer account that owns batches
type Manufacturer struct {
	ID            int64     `json:"id,string" form:"id"`
	Username      string    `gorm:"size:100;uniqueIndex" json:"username" form:"username"`
	Password      string    `json:"-" form:"password"`
	Realname      string    `json:"realname" form:"realname"`
	CompanyName   string    `json:"company_name" form:"company_name"`
	Email         string    `json:"email" form:"email"`
	WalletAddress string    `gorm:"size:66" json:"wallet_address" form:"wallet_address"`
	IsVerified    bool      `json:"is_verified" form:"is_verified"`
	Status        string    `json:"status" form:"status"`
	Remark        string    `json:"remark" form:"remark"`
	LastLogin     time.Time `json:"last_login" form:"last_login"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Manufacturer) TableName() string {
	return "manufacturers"
}

// Actor the caller identity of one request. The zero value is anonymous.
type Actor struct {
	UserID int64
	Name   string
}

func (a Actor) Authenticated() bool {
	return a.UserID != 0
}

func (a Actor) UserRef() *int64 {
	if !a.Authenticated() {
		return nil
	}
	id := a.UserID
	return &id
}
