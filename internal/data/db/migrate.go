package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/forgechat/backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// Identity
		&domain.User{},
		&domain.App{},

		// Memory
		&domain.MemoryEmbedding{},
		&domain.ToolExecution{},
		&domain.UserPersistentMemory{},

		// Chat
		&domain.ChatSession{},
		&domain.ChatMessage{},
	)
}

// EnsureMemoryIndexes creates the Postgres-only indexes AutoMigrate cannot
// express: the approximate-nearest-neighbor index over embeddings and the
// composite listing indexes.
func EnsureMemoryIndexes(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}

	// ANN index for cosine ordering. The ordering is "nearest first" under the
	// index's distance metric; exact brute-force ranking is not guaranteed.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_memory_embeddings_embedding
		ON memory_embeddings
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100);
	`).Error; err != nil {
		return fmt.Errorf("create idx_memory_embeddings_embedding: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_memory_embeddings_user_app
		ON memory_embeddings (user_id, app_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_memory_embeddings_user_app: %w", err)
	}

	// Fast session listing per user.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_last_message
		ON chat_sessions (user_id, last_message_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_chat_sessions_user_last_message: %w", err)
	}

	// Message replay in caller-supplied order.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_chat_messages_session_index
		ON chat_messages (session_id, created_at, message_index);
	`).Error; err != nil {
		return fmt.Errorf("create idx_chat_messages_session_index: %w", err)
	}

	return nil
}

// EnsureCascades declares the delete cascades from users down to their
// persistent memory, sessions and messages, and from sessions to messages.
// GORM migrates with FK constraints disabled, so these are raw and idempotent.
func EnsureCascades(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}

	stmts := []struct {
		name string
		sql  string
	}{
		{"fk_user_persistent_memory_user", `
			ALTER TABLE user_persistent_memory
			DROP CONSTRAINT IF EXISTS fk_user_persistent_memory_user;
			ALTER TABLE user_persistent_memory
			ADD CONSTRAINT fk_user_persistent_memory_user
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE;
		`},
		{"fk_chat_sessions_user", `
			ALTER TABLE chat_sessions
			DROP CONSTRAINT IF EXISTS fk_chat_sessions_user;
			ALTER TABLE chat_sessions
			ADD CONSTRAINT fk_chat_sessions_user
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE;
		`},
		{"fk_chat_messages_user", `
			ALTER TABLE chat_messages
			DROP CONSTRAINT IF EXISTS fk_chat_messages_user;
			ALTER TABLE chat_messages
			ADD CONSTRAINT fk_chat_messages_user
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE;
		`},
		{"fk_chat_messages_session", `
			ALTER TABLE chat_messages
			DROP CONSTRAINT IF EXISTS fk_chat_messages_session;
			ALTER TABLE chat_messages
			ADD CONSTRAINT fk_chat_messages_session
			FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE;
		`},
	}

	for _, s := range stmts {
		if err := db.Exec(s.sql).Error; err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
	}
	return nil
}
