package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ToolExecution is a write-once audit row. Every execution additionally
// produces one derived MemoryEmbedding summarizing it, best effort: a failed
// embed never rolls back the audit write.
type ToolExecution struct {
	ID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string     `gorm:"type:text;not null;index" json:"user_id"`
	AppID  *uuid.UUID `gorm:"type:uuid;index" json:"app_id,omitempty"`

	ToolName string            `gorm:"type:text;not null;index" json:"tool_name"`
	Args     datatypes.JSONMap `gorm:"type:jsonb" json:"args,omitempty"`
	Result   datatypes.JSONMap `gorm:"type:jsonb" json:"result,omitempty"`
	Success  bool              `gorm:"not null" json:"success"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (ToolExecution) TableName() string { return "tool_executions" }
