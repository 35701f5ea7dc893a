package models

import (
	"time"
)

type User struct {
	ID           string     `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"unique;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	DisplayName  string     `json:"displayName,omitempty"`
	ActiveStatus bool       `gorm:"not null;default:true" json:"-"`
	LastLogin    time.Time  `json:"lastLogin"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	Documents    []Document `gorm:"foreignKey:UserID" json:"-"`
}
