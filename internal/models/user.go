package models

import "time"

// LocalUser is a registry row for a telegram user
type LocalUser struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TelegramID     int64     `gorm:"column:telegram_id;uniqueIndex;not null" json:"tg_id"`
	Username       *string   `json:"username,omitempty"`
	FirstName      *string   `json:"first_name,omitempty"`
	LastName       *string   `json:"last_name,omitempty"`
	DateRegistered time.Time `json:"date_registered"`
	VPNEmail       *string   `gorm:"column:vpn_email;index" json:"vpn_email,omitempty"`
	LastAction     time.Time `json:"last_action"`
}

// TableName keeps the registry table name stable
func (LocalUser) TableName() string {
	return "users"
}

// StoredEmail returns the cached vpn email or ""
func (u LocalUser) StoredEmail() string {
	if u.VPNEmail == nil {
		return ""
	}
	return *u.VPNEmail
}

// Profile carries optional telegram profile fields; empty values leave stored ones untouched
type Profile struct {
	Username  string
	FirstName string
	LastName  string
}
