package model

import "time"

type Session struct {
	SessionId string    `gorm:"type:varchar(64);primaryKey"`
	UserId    string    `gorm:"type:varchar(64);not null;index"` // User ownership for data isolation
	Name      string    `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
	IsActive  bool      `gorm:"not null;default:true;index"`
}

func (Session) TableName() string {
	return "sessions"
}
