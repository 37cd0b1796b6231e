package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"linkgate/internal/linking/domain"
)

func sortedByAccount(links []domain.Link) []domain.Link {
	sort.Slice(links, func(i, j int) bool { return links[i].AccountID < links[j].AccountID })
	return links
}

func testSnapshot() domain.Snapshot {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return domain.Snapshot{Links: []domain.Link{
		{AccountID: "acct-1", ExternalID: 42, DisplayName: "Steve", LinkedAt: at},
		{AccountID: "acct-2", ExternalID: 43, LinkedAt: at.Add(time.Minute)},
	}}
}

func TestFileRepository_Load_MissingFile(t *testing.T) {
	repo := NewFileRepository(filepath.Join(t.TempDir(), "links.json"), zerolog.Nop())
	links, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("len = %d, want 0", len(links))
	}
}

func TestFileRepository_SaveLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "links.json")
	repo := NewFileRepository(path, zerolog.Nop())
	ctx := context.Background()

	if err := repo.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	links, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	links = sortedByAccount(links)
	want := testSnapshot().Links
	if len(links) != len(want) {
		t.Fatalf("len = %d, want %d", len(links), len(want))
	}
	for i := range want {
		if links[i].AccountID != want[i].AccountID || links[i].ExternalID != want[i].ExternalID ||
			links[i].DisplayName != want[i].DisplayName || !links[i].LinkedAt.Equal(want[i].LinkedAt) {
			t.Errorf("link[%d] = %+v, want %+v", i, links[i], want[i])
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var doc struct {
		Metadata struct {
			SavedAt    int64  `json:"savedAt"`
			TotalLinks int    `json:"totalLinks"`
			Version    string `json:"version"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode saved document: %v", err)
	}
	if doc.Metadata.TotalLinks != 2 || doc.Metadata.Version != FormatVersion || doc.Metadata.SavedAt == 0 {
		t.Errorf("metadata = %+v", doc.Metadata)
	}
}

func TestFileRepository_Save_WritesBackupOfPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.json")
	repo := NewFileRepository(path, zerolog.Nop())
	ctx := context.Background()

	first := domain.Snapshot{Links: []domain.Link{{AccountID: "acct-1", ExternalID: 1, LinkedAt: time.Now()}}}
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(repo.BackupPath()); !os.IsNotExist(err) {
		t.Fatalf("no backup expected after first save, stat err = %v", err)
	}
	before, _ := os.ReadFile(path)

	if err := repo.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	backup, err := os.ReadFile(repo.BackupPath())
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backup) != string(before) {
		t.Error("backup should hold the previous primary contents")
	}
}

func TestFileRepository_Load_SkipsBadRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.json")
	doc := `{
  "links": {
    "acct-1": {"externalId": 42, "linkedAt": 1767261600000},
    "acct-2": {"externalId": "not-a-number", "linkedAt": 1},
    "acct-3": {"externalId": 0, "linkedAt": 1},
    "acct-4": {"externalId": -5, "linkedAt": 1},
    "acct-5": {"externalId": 7}
  },
  "metadata": {"savedAt": 0, "totalLinks": 5, "version": "1"}
}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	repo := NewFileRepository(path, zerolog.Nop())

	links, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	links = sortedByAccount(links)
	if len(links) != 2 {
		t.Fatalf("len = %d, want 2 (%+v)", len(links), links)
	}
	if links[0].AccountID != "acct-1" || links[1].AccountID != "acct-5" {
		t.Errorf("unexpected links %+v", links)
	}
	if links[1].LinkedAt.IsZero() {
		t.Error("missing linkedAt should default to load time")
	}
}

func TestFileRepository_Load_FallsBackToBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.json")
	repo := NewFileRepository(path, zerolog.Nop())
	ctx := context.Background()

	if err := repo.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(path, []byte("{truncated"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	links, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(links) != 2 {
		t.Errorf("len = %d, want 2 from backup", len(links))
	}
}

func TestFileRepository_Load_BothCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.json")
	_ = os.WriteFile(path, []byte("nope"), 0o600)
	_ = os.WriteFile(path+BackupSuffix, []byte("also nope"), 0o600)
	repo := NewFileRepository(path, zerolog.Nop())

	if _, err := repo.Load(context.Background()); err == nil {
		t.Fatal("expected error when primary and backup are both corrupt")
	}
}

func TestFileRepository_SaveLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.yaml")
	repo := NewFileRepository(path, zerolog.Nop())
	ctx := context.Background()

	if err := repo.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if json.Valid(raw) {
		t.Error("yaml path should not be written as JSON")
	}
	links, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	links = sortedByAccount(links)
	if len(links) != 2 || links[0].ExternalID != 42 || links[0].DisplayName != "Steve" {
		t.Errorf("unexpected links %+v", links)
	}
}

func TestFileRepository_CanceledContext(t *testing.T) {
	repo := NewFileRepository(filepath.Join(t.TempDir(), "links.json"), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := repo.Save(ctx, testSnapshot()); err == nil {
		t.Error("Save should fail on canceled context")
	}
	if _, err := repo.Load(ctx); err == nil {
		t.Error("Load should fail on canceled context")
	}
}
