package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// App is a user-created project. Memory and tool-execution records may be
// scoped to an app to keep retrieval relevant to what the user is building.
type App struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string    `gorm:"type:text;not null;index" json:"userId"`

	Name        string `gorm:"type:text;not null" json:"name"`
	Description string `gorm:"type:text;not null;default:''" json:"description"`

	// Config holds free-form app configuration (framework, template, ...).
	Config datatypes.JSONMap `gorm:"type:jsonb" json:"config,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updatedAt"`
}

func (App) TableName() string { return "apps" }
