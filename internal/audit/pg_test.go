package audit

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	occurred := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("insert into audit_events").
		WithArgs("01J0TEST", occurred, "op@example.org", "finance", "user.create", "user", "maria@example.org", []byte(`{"mail":"maria@example.org"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	err = store.Append(context.Background(), &Entry{
		ID:           "01J0TEST",
		OccurredAt:   occurred,
		Actor:        "op@example.org",
		Organization: "finance",
		Action:       "user.create",
		ResourceType: "user",
		ResourceID:   "maria@example.org",
		Fields:       map[string]string{"mail": "maria@example.org"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreAppendWithoutFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	occurred := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("insert into audit_events").
		WithArgs("01J0TEST", occurred, "", "", "session.logout", "", "", []byte(nil)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	err = store.Append(context.Background(), &Entry{
		ID:         "01J0TEST",
		OccurredAt: occurred,
		Action:     "session.logout",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
