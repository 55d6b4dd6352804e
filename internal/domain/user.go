package domain

import (
	"time"

	"gorm.io/datatypes"
)

// User identities are opaque strings: either issued by the OAuth provider
// (provider-subject form, e.g. "google-oauth2|10769150350006") or generated
// locally for anonymous sessions. Users are created on first reference and
// never hard-deleted in the normal flow.
type User struct {
	ID    string  `gorm:"type:text;primaryKey" json:"id"`
	Email *string `gorm:"type:text;index" json:"email,omitempty"`
	Name  *string `gorm:"type:text" json:"name,omitempty"`

	// IsAuthenticated records whether the ID follows the externally issued
	// provider-subject convention at creation time.
	IsAuthenticated bool `gorm:"not null;default:false" json:"is_authenticated"`

	Settings datatypes.JSONMap `gorm:"type:jsonb" json:"settings,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }
