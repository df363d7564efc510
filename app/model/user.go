package model

import (
	"go-shipper/app/model/field"
	"gorm.io/gorm"
	"time"
)

type User struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement;" json:"id"`

	Username      string       `gorm:"column:username;size:100;notNull;default:''" json:"username"`
	Email         string       `gorm:"column:email;uniqueIndex;size:100;notNull" json:"email"`
	Password      []byte       `gorm:"column:password;size:200;notNull" json:"-"`
	Role          string       `gorm:"column:role;size:20;notNull;default:'viewer'" json:"role"`
	Status        field.Status `gorm:"column:status;notNull;default:0" json:"status"`
	RememberToken string       `gorm:"remember_token;size:500;notNull;default:''" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;notNull" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;notNull" json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at" json:"-"`
}
