package model

import "time"

// Project groups tasks for a client engagement or internal initiative.
type Project struct {
	ID        uint   `gorm:"primaryKey"`
	OwnerID   uint   `gorm:"index:idx_owner_project_name,unique"`
	Name      string `gorm:"index:idx_owner_project_name,unique"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Tasks     []Task `gorm:"foreignKey:ProjectID"`
}
