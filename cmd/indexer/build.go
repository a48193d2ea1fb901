package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kirillkom/rpps-atas-assistant/internal/bootstrap"
	"github.com/kirillkom/rpps-atas-assistant/internal/config"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/ports"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/usecase"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/extractor"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/metadata/jsonfile"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/vector/flat"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/vector/qdrant"
)

const qdrantUpsertBatch = 256

func newBuildCmd(cfg config.Config) *cobra.Command {
	var (
		source     string
		reportPath string
		batchSize  int
		noBackup   bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Extract, chunk, enrich and embed minutes, then write metadata and vectors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if source == "" {
				source = cfg.DocumentsRoot
			}
			return runBuild(cmd.Context(), cfg, buildOptions{
				source:     source,
				reportPath: reportPath,
				batchSize:  batchSize,
				backup:     !noBackup,
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "directory with .txt/.pdf minutes (default DOCUMENTS_ROOT)")
	cmd.Flags().StringVar(&reportPath, "report", "", "also write an entity coverage workbook to this .xlsx path")
	cmd.Flags().IntVar(&batchSize, "batch", 16, "texts per embedding request")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "do not keep a backup of the previous metadata file")
	return cmd
}

type buildOptions struct {
	source     string
	reportPath string
	batchSize  int
	backup     bool
}

func runBuild(ctx context.Context, cfg config.Config, opts buildOptions) error {
	engine, err := bootstrap.NewEngine(cfg.RulesPath)
	if err != nil {
		return err
	}
	storage, err := localfs.New(opts.source)
	if err != nil {
		return fmt.Errorf("open source dir: %w", err)
	}
	router := newExtractorRouter(storage)
	paths, err := collectSources(opts.source, router)
	if err != nil {
		return err
	}
	slog.Info("sources_found", "count", len(paths), "root", opts.source)

	executor := bootstrap.NewExecutor(cfg)
	embedder, err := bootstrap.NewEmbedder(cfg, executor)
	if err != nil {
		return err
	}
	builder := usecase.NewIndexBuildUseCase(
		router,
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		engine.Enricher,
		embedder,
		opts.batchSize,
	)
	built, err := builder.Build(ctx, paths)
	if err != nil {
		return err
	}

	if err := persist(ctx, cfg, built, executor, opts.backup); err != nil {
		return err
	}
	if opts.reportPath != "" {
		if err := writeReport(opts.reportPath, built.Records); err != nil {
			return err
		}
	}
	slog.Info("index_built",
		"records", len(built.Records),
		"skipped", len(built.Skipped),
		"metadata_backend", cfg.MetadataBackend,
		"vector_backend", cfg.VectorBackend,
	)
	return nil
}

func newExtractorRouter(storage ports.ObjectStorage) *extractor.Router {
	return extractor.NewRouter(map[string]ports.TextExtractor{
		".txt": plaintext.NewExtractor(storage),
		".pdf": pdf.NewExtractor(storage),
	})
}

// collectSources returns supported files under root as sorted slash-separated keys.
func collectSources(root string, router *extractor.Router) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !router.Supports(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}

// persist writes records and vectors with the same positions to the configured backends.
func persist(ctx context.Context, cfg config.Config, built *usecase.BuiltIndex, executor *resilience.Executor, backup bool) error {
	switch cfg.MetadataBackend {
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		repo := postgres.NewRecordRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		if err := repo.ReplaceAll(ctx, built.Records); err != nil {
			return err
		}
	default:
		if err := jsonfile.Save(cfg.MetadataPath, built.Records, backup); err != nil {
			return err
		}
	}

	dimension := len(built.Vectors[0])
	switch cfg.VectorBackend {
	case "qdrant":
		client := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, dimension, executor)
		for start := 0; start < len(built.Vectors); start += qdrantUpsertBatch {
			end := min(start+qdrantUpsertBatch, len(built.Vectors))
			if err := client.Upsert(ctx, start, built.Vectors[start:end]); err != nil {
				return fmt.Errorf("upsert vectors %d-%d: %w", start, end, err)
			}
		}
		if err := client.Prune(ctx, len(built.Vectors)); err != nil {
			return fmt.Errorf("prune stale vectors: %w", err)
		}
	default:
		index, err := flat.New(dimension)
		if err != nil {
			return err
		}
		if err := index.Add(built.Vectors); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(cfg.VectorIndexPath), 0o755); err != nil {
			return fmt.Errorf("create index dir: %w", err)
		}
		if err := index.Save(cfg.VectorIndexPath); err != nil {
			return err
		}
	}
	return nil
}
