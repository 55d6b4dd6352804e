package memory

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/forgechat/backend/internal/domain"
	"github.com/forgechat/backend/internal/platform/dbctx"
	"github.com/forgechat/backend/internal/platform/logger"
	"github.com/forgechat/backend/internal/platform/vectormath"
)

type SimilarityQuery struct {
	UserID string
	Vector pgvector.Vector
	AppID  *uuid.UUID
	Limit  int
}

// SimilarityHit carries a similarity derived from the store's cosine distance
// as 1 - distance. Scores only compare meaningfully against query vectors
// from the same embedding model.
type SimilarityHit struct {
	Content    string            `json:"content"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	Similarity float64           `json:"similarity"`
	CreatedAt  time.Time         `json:"timestamp"`
}

type EmbeddingRepo interface {
	Create(dbc dbctx.Context, row *domain.MemoryEmbedding) (*domain.MemoryEmbedding, error)
	// SimilaritySearch returns up to Limit rows ordered nearest first. On
	// Postgres the ordering comes from the pgvector ANN index; elsewhere it
	// falls back to brute-force cosine ranking, O(n) in the user's corpus.
	SimilaritySearch(dbc dbctx.Context, q SimilarityQuery) ([]SimilarityHit, error)
}

type embeddingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmbeddingRepo(db *gorm.DB, log *logger.Logger) EmbeddingRepo {
	return &embeddingRepo{db: db, log: log.With("repo", "EmbeddingRepo")}
}

func (r *embeddingRepo) Create(dbc dbctx.Context, row *domain.MemoryEmbedding) (*domain.MemoryEmbedding, error) {
	if row == nil || row.UserID == "" {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if err := txx.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *embeddingRepo) SimilaritySearch(dbc dbctx.Context, q SimilarityQuery) ([]SimilarityHit, error) {
	if q.UserID == "" {
		return nil, fmt.Errorf("missing user_id")
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 5
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}

	if txx.Dialector.Name() == "postgres" {
		return r.searchPgvector(dbc, txx, q)
	}
	return r.searchBruteForce(dbc, txx, q)
}

func (r *embeddingRepo) searchPgvector(dbc dbctx.Context, txx *gorm.DB, q SimilarityQuery) ([]SimilarityHit, error) {
	sql := `
		SELECT content, metadata, created_at,
		       1 - (embedding <=> ?) AS similarity
		FROM memory_embeddings
		WHERE user_id = ?`
	args := []any{q.Vector, q.UserID}
	if q.AppID != nil && *q.AppID != uuid.Nil {
		sql += ` AND app_id = ?`
		args = append(args, *q.AppID)
	}
	sql += `
		ORDER BY embedding <=> ?
		LIMIT ?`
	args = append(args, q.Vector, q.Limit)

	var hits []SimilarityHit
	if err := txx.WithContext(dbc.Ctx).Raw(sql, args...).Scan(&hits).Error; err != nil {
		return nil, err
	}
	return hits, nil
}

// searchBruteForce loads the filtered corpus and ranks it in Go. Dev/test
// only; corpora past a few thousand rows belong on pgvector.
func (r *embeddingRepo) searchBruteForce(dbc dbctx.Context, txx *gorm.DB, q SimilarityQuery) ([]SimilarityHit, error) {
	query := txx.WithContext(dbc.Ctx).
		Model(&domain.MemoryEmbedding{}).
		Where("user_id = ?", q.UserID)
	if q.AppID != nil && *q.AppID != uuid.Nil {
		query = query.Where("app_id = ?", *q.AppID)
	}

	var rows []*domain.MemoryEmbedding
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	queryVec := q.Vector.Slice()
	hits := make([]SimilarityHit, 0, len(rows))
	for _, row := range rows {
		sim, err := vectormath.CosineSimilarity(queryVec, row.Embedding.Slice())
		if err != nil {
			r.log.Warn("Skipping embedding with mismatched dimensions",
				"memory_id", row.ID, "error", err)
			continue
		}
		hits = append(hits, SimilarityHit{
			Content:    row.Content,
			Metadata:   row.Metadata,
			Similarity: sim,
			CreatedAt:  row.CreatedAt,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}
