package spacetraveling

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/eringen/spacetraveling/posts"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore(t *testing.T) {
	s := setupTestStore(t)
	if s.db == nil {
		t.Fatal("db should not be nil")
	}
}

func TestLatestSnapshotEmpty(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.LatestSnapshot(context.Background(), "posts")
	if !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	published := time.Date(2021, 3, 25, 19, 25, 28, 0, time.UTC)

	page := posts.Page{
		Cursor: "https://repo.cdn.prismic.io/api/v2/documents/search?page=2",
		Results: []posts.Summary{
			{UID: "como-utilizar-hooks", FirstPublicationDate: &published, Title: "Como utilizar Hooks", Subtitle: "Pensando em sincronização", Author: "Joseph Oliveira"},
			{UID: "criando-um-app-cra-do-zero", Title: "Criando um app CRA do zero", Subtitle: "Tudo sobre como criar", Author: "Danilo Vieira"},
		},
	}
	saved, err := s.SaveSnapshot(ctx, "posts", page)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("snapshot id should be set")
	}

	got, err := s.LatestSnapshot(ctx, "posts")
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if got.ID != saved.ID {
		t.Errorf("ID = %q, want %q", got.ID, saved.ID)
	}
	if got.Page.Cursor != page.Cursor {
		t.Errorf("Cursor = %q, want %q", got.Page.Cursor, page.Cursor)
	}
	if len(got.Page.Results) != 2 {
		t.Fatalf("Results count = %d, want 2", len(got.Page.Results))
	}
	first := got.Page.Results[0]
	if first.UID != "como-utilizar-hooks" || first.Title != "Como utilizar Hooks" || first.Author != "Joseph Oliveira" {
		t.Errorf("first result = %+v", first)
	}
	if first.FirstPublicationDate == nil || !first.FirstPublicationDate.Equal(published) {
		t.Errorf("FirstPublicationDate = %v, want %v", first.FirstPublicationDate, published)
	}
	if got.Page.Results[1].FirstPublicationDate != nil {
		t.Error("second result should have no publication date")
	}
}

func TestLatestSnapshotIsNewestPerType(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveSnapshot(ctx, "posts", posts.Page{Results: []posts.Summary{{UID: "old"}}}); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if _, err := s.SaveSnapshot(ctx, "posts", posts.Page{Results: []posts.Summary{{UID: "new"}}}); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if _, err := s.SaveSnapshot(ctx, "pages", posts.Page{Results: []posts.Summary{{UID: "other"}}}); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	got, err := s.LatestSnapshot(ctx, "posts")
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if len(got.Page.Results) != 1 || got.Page.Results[0].UID != "new" {
		t.Errorf("latest posts snapshot = %+v, want uid new", got.Page.Results)
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, uid := range []string{"a", "b", "c", "d"} {
		if _, err := s.SaveSnapshot(ctx, "posts", posts.Page{Results: []posts.Summary{{UID: uid}}}); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
	}
	if err := s.Prune(ctx, "posts", 2); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	n, err := s.CountSnapshots(ctx, "posts")
	if err != nil {
		t.Fatalf("CountSnapshots failed: %v", err)
	}
	if n != 2 {
		t.Errorf("snapshot count = %d, want 2", n)
	}
	var orphans int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM snapshot_posts WHERE snapshot_id NOT IN (SELECT id FROM snapshots)`).Scan(&orphans); err != nil {
		t.Fatalf("orphan query failed: %v", err)
	}
	if orphans != 0 {
		t.Errorf("orphaned posts = %d, want 0", orphans)
	}
	got, err := s.LatestSnapshot(ctx, "posts")
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if got.Page.Results[0].UID != "d" {
		t.Errorf("latest uid = %q, want d", got.Page.Results[0].UID)
	}
}

func TestSnapshotWithoutCursor(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	if _, err := s.SaveSnapshot(ctx, "posts", posts.Page{}); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	got, err := s.LatestSnapshot(ctx, "posts")
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if got.Page.HasMore() {
		t.Error("snapshot without cursor should have no more pages")
	}
	if len(got.Page.Results) != 0 {
		t.Errorf("Results = %v, want empty", got.Page.Results)
	}
}
