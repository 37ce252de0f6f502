package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/complaints-rag/internal/bootstrap"
	"github.com/kirillkom/complaints-rag/internal/core/ports"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/source/jsonfile"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/source/xlsx"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	var sheet string
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Replace the Postgres record table with the records of a JSON or XLSX file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.PostgresDSN == "" {
				return fmt.Errorf("import needs POSTGRES_DSN")
			}

			src, err := fileSource(args[0], sheet)
			if err != nil {
				return err
			}
			records, err := src.Records(cmd.Context())
			if err != nil {
				return err
			}

			repo, db, err := bootstrap.OpenRecordRepository(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repo.Replace(cmd.Context(), records); err != nil {
				return err
			}
			cmd.Printf("imported %d records into %s\n", len(records), repo.Name())
			return nil
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "XLSX sheet (default: first sheet)")
	return cmd
}

func fileSource(path, sheet string) (ports.RecordSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return jsonfile.New(path), nil
	case ".xlsx":
		return xlsx.New(path, sheet), nil
	default:
		return nil, fmt.Errorf("unsupported file type %q: use .json or .xlsx", filepath.Ext(path))
	}
}
