// Package model 包含了应用的数据模型定义。
package model

import "time"

// User 定义了 users 表的 ORM 模型。
// 注册记录不可变：创建后不会被更新，只会随存储清空而删除。
// Email 与 Mobile 均唯一，两者都能定位同一条记录。
type User struct {
	ID               string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	FullName         string    `gorm:"type:varchar(100);not null" json:"fullName"`
	Email            string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Mobile           string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"mobile"`
	Password         string    `gorm:"type:varchar(255);not null" json:"-"`
	RegistrationDate time.Time `gorm:"autoCreateTime" json:"registrationDate"`

	// IsAuthenticated 是会话态标记，不落库，由 handler 在响应中填充。
	IsAuthenticated bool `gorm:"-" json:"isAuthenticated"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}
