package model

import "time"

type User struct {
	UserId    string    `gorm:"type:varchar(64);primaryKey"`
	Username  string    `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (User) TableName() string {
	return "users"
}
