package xlsx

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

func writeWorkbook(t *testing.T, sheet string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		if _, err := f.NewSheet(sheet); err != nil {
			t.Fatalf("NewSheet: %v", err)
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "complaints.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func TestRecordsUsesHeaderRowAndNullsBlankCells(t *testing.T) {
	path := writeWorkbook(t, "Reclamacoes", [][]any{
		{"Data_Reclamacao", "Órgão", "Status"},
		{"2024-01-10", "Prefeitura", "Aberto"},
		{"2024-02-01", "", "Fechado"},
		{},
		{"2024-03-05", "Detran"},
	})

	records, err := New(path, "Reclamacoes").Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d: %+v", len(records), records)
	}
	if records[0]["Órgão"] != "Prefeitura" || records[0]["Status"] != "Aberto" {
		t.Fatalf("unexpected first record %+v", records[0])
	}
	if v, ok := records[1]["Órgão"]; !ok || v != nil {
		t.Fatalf("blank cell should be null, got %#v", v)
	}
	if v, ok := records[2]["Status"]; !ok || v != nil {
		t.Fatalf("missing trailing cell should be null, got %#v", v)
	}
}

func TestRecordsMissingSheetOrFile(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]any{{"Status"}, {"Aberto"}})
	if _, err := New(path, "Nope").Records(context.Background()); !errors.Is(err, domain.ErrIO) {
		t.Fatalf("expected ErrIO for missing sheet, got %v", err)
	}
	if _, err := New(filepath.Join(t.TempDir(), "none.xlsx"), "").Records(context.Background()); !errors.Is(err, domain.ErrIO) {
		t.Fatalf("expected ErrIO for missing file, got %v", err)
	}
}

func TestRecordsDefaultsToActiveSheet(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]any{{"Status"}, {"Aberto"}})
	records, err := New(path, "").Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 1 || records[0]["Status"] != "Aberto" {
		t.Fatalf("unexpected records %+v", records)
	}
}
