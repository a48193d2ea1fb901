package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/rpps-atas-assistant/internal/bootstrap"
	"github.com/kirillkom/rpps-atas-assistant/internal/config"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/report/xlsx"
)

func newReportCmd(cfg config.Config) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write an entity coverage workbook for the current metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := bootstrap.LoadRecords(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return writeReport(out, records)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "cobertura.xlsx", "output .xlsx path")
	return cmd
}

func writeReport(path string, records []domain.DocumentRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := xlsx.WriteCoverage(f, records); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	slog.Info("report_written", "path", path, "records", len(records))
	return nil
}
