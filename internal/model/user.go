package model

import "time"

// 角色
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ValidRole 角色只能是 user 或 admin
func ValidRole(role string) bool { return role == RoleUser || role == RoleAdmin }

// User 用户（邮箱唯一）
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Email        string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"type:varchar(72);not null"`
	Role         string    `json:"role" gorm:"type:varchar(16);not null;default:'user'"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}

func (User) TableName() string { return "users" }
