package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/forgechat/backend/internal/data/repos/testutil"
	"github.com/forgechat/backend/internal/domain"
	"github.com/forgechat/backend/internal/platform/dbctx"
)

func seedEmbedding(t *testing.T, repo EmbeddingRepo, dbc dbctx.Context, userID, content string, appID *uuid.UUID, head []float32) {
	t.Helper()
	vec := make([]float32, domain.EmbeddingDimensions)
	copy(vec, head)
	_, err := repo.Create(dbc, &domain.MemoryEmbedding{
		ID:        uuid.New(),
		UserID:    userID,
		AppID:     appID,
		Content:   content,
		Embedding: pgvector.NewVector(vec),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed embedding %q: %v", content, err)
	}
}

func queryVector(head []float32) pgvector.Vector {
	vec := make([]float32, domain.EmbeddingDimensions)
	copy(vec, head)
	return pgvector.NewVector(vec)
}

func TestSimilaritySearchOrdering(t *testing.T) {
	log := testutil.Logger(t)
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewEmbeddingRepo(gdb, log)

	testutil.SeedUser(t, dbc.Ctx, tx, "u1")
	seedEmbedding(t, repo, dbc, "u1", "exact", nil, []float32{1, 0})
	seedEmbedding(t, repo, dbc, "u1", "close", nil, []float32{0.9, 0.435889894})
	seedEmbedding(t, repo, dbc, "u1", "orthogonal", nil, []float32{0, 1})

	hits, err := repo.SimilaritySearch(dbc, SimilarityQuery{
		UserID: "u1",
		Vector: queryVector([]float32{1, 0}),
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Content != "exact" || hits[1].Content != "close" || hits[2].Content != "orthogonal" {
		t.Fatalf("wrong order: %q, %q, %q", hits[0].Content, hits[1].Content, hits[2].Content)
	}
	if hits[0].Similarity < 0.99 {
		t.Fatalf("identical vectors should score ~1.0, got %f", hits[0].Similarity)
	}
	if hits[2].Similarity > 0.01 {
		t.Fatalf("orthogonal vectors should score ~0, got %f", hits[2].Similarity)
	}
}

func TestSimilaritySearchScoping(t *testing.T) {
	log := testutil.Logger(t)
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewEmbeddingRepo(gdb, log)

	testutil.SeedUser(t, dbc.Ctx, tx, "u1")
	testutil.SeedUser(t, dbc.Ctx, tx, "u2")
	app := testutil.SeedApp(t, dbc.Ctx, tx, "u1", "editor")

	seedEmbedding(t, repo, dbc, "u1", "global memory", nil, []float32{1})
	seedEmbedding(t, repo, dbc, "u1", "app memory", &app.ID, []float32{1})
	seedEmbedding(t, repo, dbc, "u2", "foreign memory", nil, []float32{1})

	hits, err := repo.SimilaritySearch(dbc, SimilarityQuery{
		UserID: "u1",
		Vector: queryVector([]float32{1}),
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected user-scoped hits, got %+v", hits)
	}
	for _, h := range hits {
		if h.Content == "foreign memory" {
			t.Fatalf("leaked another user's memory")
		}
	}

	appHits, err := repo.SimilaritySearch(dbc, SimilarityQuery{
		UserID: "u1",
		Vector: queryVector([]float32{1}),
		AppID:  &app.ID,
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("app-scoped SimilaritySearch: %v", err)
	}
	if len(appHits) != 1 || appHits[0].Content != "app memory" {
		t.Fatalf("expected only the app-scoped memory, got %+v", appHits)
	}
}

func TestSimilaritySearchLimit(t *testing.T) {
	log := testutil.Logger(t)
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewEmbeddingRepo(gdb, log)

	testutil.SeedUser(t, dbc.Ctx, tx, "u1")
	for _, c := range []string{"a", "b", "c", "d"} {
		seedEmbedding(t, repo, dbc, "u1", c, nil, []float32{1})
	}

	hits, err := repo.SimilaritySearch(dbc, SimilarityQuery{
		UserID: "u1",
		Vector: queryVector([]float32{1}),
		Limit:  2,
	})
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("limit not applied: got %d hits", len(hits))
	}
}
