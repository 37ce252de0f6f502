package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*RecordRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	repo, err := NewRecordRepository(db, "")
	if err != nil {
		t.Fatalf("NewRecordRepository() error = %v", err)
	}
	return repo, mock, func() { _ = db.Close() }
}

func TestRecordsDecodesRowsInOrder(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT record FROM complaint_records ORDER BY id").
		WillReturnRows(sqlmock.NewRows([]string{"record"}).
			AddRow([]byte(`{"Status":"Aberto","Local":"Centro"}`)).
			AddRow([]byte(`{"Status":null}`)))

	records, err := repo.Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 2 || records[0]["Status"] != "Aberto" || records[0]["Local"] != "Centro" {
		t.Fatalf("unexpected records %+v", records)
	}
	if v, ok := records[1]["Status"]; !ok || v != nil {
		t.Fatalf("expected explicit null, got %#v", v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordsMalformedJSONIsIOError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT record FROM complaint_records").
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow([]byte(`[1,2]`)))

	if _, err := repo.Records(context.Background()); !errors.Is(err, domain.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestRecordsQueryFailureIsIOError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT record FROM complaint_records").WillReturnError(errors.New("relation does not exist"))

	if _, err := repo.Records(context.Background()); !errors.Is(err, domain.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(int64(2026101601)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS complaint_records").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceRollsBackOnInsertFailure(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE complaint_records").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO complaint_records").WithArgs([]byte(`{"Status":"Aberto"}`)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO complaint_records").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Replace(context.Background(), []domain.Record{{"Status": "Aberto"}, {"Status": "Fechado"}})
	if !errors.Is(err, domain.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInvalidTableNameIsConfigError(t *testing.T) {
	if _, err := NewRecordRepository(nil, "records; DROP TABLE x"); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
