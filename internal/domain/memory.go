package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// EmbeddingDimensions is fixed by the embedding model configuration
// (text-embedding-3-small). Similarity scores are only meaningful between
// vectors produced by the same model and dimensionality.
const EmbeddingDimensions = 1536

// MemoryEmbedding is an append-only log of interaction snippets with their
// embedding vectors. Rows are immutable once written and queried only by
// vector similarity, never by content match.
type MemoryEmbedding struct {
	ID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string     `gorm:"type:text;not null;index" json:"user_id"`
	AppID  *uuid.UUID `gorm:"type:uuid;index" json:"app_id,omitempty"`

	Content   string            `gorm:"type:text;not null" json:"content"`
	Embedding pgvector.Vector   `gorm:"type:vector(1536)" json:"-"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (MemoryEmbedding) TableName() string { return "memory_embeddings" }

// UserPersistentMemory is the single free-text context block per user,
// injected verbatim into model prompts ahead of retrieved memories. Updates
// replace the row wholesale (delete-then-insert inside one transaction).
type UserPersistentMemory struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string    `gorm:"type:text;not null;index" json:"user_id"`

	Content string `gorm:"type:text;not null" json:"content"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (UserPersistentMemory) TableName() string { return "user_persistent_memory" }
