package cities

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var cityCols = []string{"id", "external_doc_id", "name", "name_en", "country", "image_url", "local_image_filename", "last_updated", "created_at"}

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreateWritesNullsForMissingFields(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	city := City{ID: "c1", Name: "서울", NameEn: "Seoul", CreatedAt: now, LastUpdated: now}

	mock.ExpectExec("INSERT INTO cities").
		WithArgs("c1", nil, "서울", "Seoul", "", nil, nil, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), city); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM cities WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoListNeedingEnrichmentScansNullables(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(cityCols).
		AddRow("c1", nil, "서울", "Seoul", "KR", nil, nil, now, now).
		AddRow("c2", "doc123", "Paris", "", "FR", "https://x/paris.jpg", nil, now, now)
	mock.ExpectQuery("SELECT (.+) FROM cities\\s+WHERE image_url IS NULL").WillReturnRows(rows)

	got, err := repo.ListNeedingEnrichment(context.Background())
	if err != nil {
		t.Fatalf("ListNeedingEnrichment: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].ImageURL != nil || got[0].ExternalDocID != nil {
		t.Fatalf("expected nil optionals on first row: %+v", got[0])
	}
	if Deref(got[1].ExternalDocID) != "doc123" || Deref(got[1].ImageURL) != "https://x/paris.jpg" {
		t.Fatalf("unexpected second row: %+v", got[1])
	}
	if got[1].LocalImageFilename != nil {
		t.Fatalf("expected nil local file on second row")
	}
}

func TestPGRepoUpdateLocksAndWrites(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	later := now.Add(time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM cities WHERE id = \\$1 FOR UPDATE").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(cityCols).AddRow("c1", nil, "서울", "Seoul", "KR", nil, nil, now, now))
	mock.ExpectExec("UPDATE cities").
		WithArgs("doc9", "https://x/seoul.jpg", "seoul.jpg", later, "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Update(context.Background(), "c1", func(c *City) (bool, error) {
		c.ExternalDocID = StringPtr("doc9")
		c.ImageURL = StringPtr("https://x/seoul.jpg")
		c.LocalImageFilename = StringPtr("seoul.jpg")
		c.LastUpdated = later
		return true, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateUnchangedRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(cityCols).AddRow("c1", nil, "Rome", "", "IT", "https://x/r.jpg", "r.jpg", now, now))
	mock.ExpectRollback()

	err := repo.Update(context.Background(), "c1", func(c *City) (bool, error) { return false, nil })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateMissingRowIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("gone").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Update(context.Background(), "gone", func(c *City) (bool, error) { return true, nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecodeChange(t *testing.T) {
	tests := []struct {
		payload string
		ok      bool
	}{
		{payload: `{"op":"insert","id":"c1"}`, ok: true},
		{payload: `{"op":"update","id":"c1"}`, ok: true},
		{payload: `{"op":"delete","id":"c1"}`, ok: false},
		{payload: `{"op":"insert"}`, ok: false},
		{payload: `not-json`, ok: false},
	}
	for _, tt := range tests {
		if _, ok := decodeChange(tt.payload); ok != tt.ok {
			t.Fatalf("decodeChange(%s) ok=%v, want %v", tt.payload, ok, tt.ok)
		}
	}
}
