package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/rpps-atas-assistant/internal/config"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/usecase"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/metadata/jsonfile"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/vector/flat"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCollectSourcesFiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2023", "ata-05.txt"), "a")
	writeFile(t, filepath.Join(root, "2022", "ata-01.PDF"), "b")
	writeFile(t, filepath.Join(root, "2023", "notas.docx"), "c")

	storage, err := localfs.New(root)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	paths, err := collectSources(root, newExtractorRouter(storage))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(paths) != 2 || paths[0] != "2022/ata-01.PDF" || paths[1] != "2023/ata-05.txt" {
		t.Fatalf("unexpected paths %v", paths)
	}
}

func TestPersistWritesAlignedJSONAndFlatIndex(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		MetadataBackend: "json",
		MetadataPath:    filepath.Join(dir, "metadata.json"),
		VectorBackend:   "flat",
		VectorIndexPath: filepath.Join(dir, "index", "atas.index"),
	}
	built := &usecase.BuiltIndex{
		Records: []domain.DocumentRecord{
			{ID: "a.txt", Path: "a.txt", Text: "um", Entities: []string{"SAO CARLOS IPREV"}, Year: 2023},
			{ID: "b.txt", Path: "b.txt", Text: "dois"},
		},
		Vectors: [][]float32{{1, 0}, {0, 1}},
	}
	if err := persist(context.Background(), cfg, built, nil, false); err != nil {
		t.Fatalf("persist: %v", err)
	}

	records, err := jsonfile.Load(cfg.MetadataPath)
	if err != nil {
		t.Fatalf("load metadata: %v", err)
	}
	index, err := flat.Load(cfg.VectorIndexPath)
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	if len(records) != index.Size() || index.Dimension() != 2 {
		t.Fatalf("misaligned outputs: %d records, %d vectors, dim %d", len(records), index.Size(), index.Dimension())
	}
	hits, err := index.Search(context.Background(), []float32{0, 1}, 1)
	if err != nil || len(hits) != 1 || records[hits[0].Position].Path != "b.txt" {
		t.Fatalf("unexpected search result %v, %v", hits, err)
	}
}

func TestPersistQdrantRebuildDropsStalePoints(t *testing.T) {
	points := map[int]bool{}
	for i := 0; i < 10; i++ {
		points[i] = true
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/atas":
			http.Error(w, "exists", http.StatusConflict)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/atas/points":
			var body struct {
				Points []struct {
					ID int `json:"id"`
				} `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for _, p := range body.Points {
				points[p.ID] = true
			}
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/collections/atas/points/delete":
			var body struct {
				Filter struct {
					Must []struct {
						Range struct {
							Gte int `json:"gte"`
						} `json:"range"`
					} `json:"must"`
				} `json:"filter"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for id := range points {
				if id >= body.Filter.Must[0].Range.Gte {
					delete(points, id)
				}
			}
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	cfg := config.Config{
		MetadataBackend:  "json",
		MetadataPath:     filepath.Join(dir, "metadata.json"),
		VectorBackend:    "qdrant",
		QdrantURL:        server.URL,
		QdrantCollection: "atas",
	}
	built := &usecase.BuiltIndex{}
	for i := 0; i < 8; i++ {
		built.Records = append(built.Records, domain.DocumentRecord{ID: string(rune('a' + i)), Path: string(rune('a'+i)) + ".txt"})
		built.Vectors = append(built.Vectors, []float32{float32(i), 1})
	}
	if err := persist(context.Background(), cfg, built, nil, false); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(points) != 8 {
		t.Fatalf("expected 8 points after rebuild, got %d", len(points))
	}
	for i := 0; i < 8; i++ {
		if !points[i] {
			t.Fatalf("missing point %d", i)
		}
	}
}

func TestWriteReportCreatesWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cobertura.xlsx")
	if err := writeReport(path, []domain.DocumentRecord{{Path: "a.txt", Entities: []string{"CAMPINAS IPREMC"}}}); err != nil {
		t.Fatalf("write report: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected non-empty workbook, got %v, %v", info, err)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd(config.Config{})
	for _, name := range []string{"build", "report", "ask"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Fatalf("expected subcommand %q, got %v, %v", name, cmd, err)
		}
	}
}
