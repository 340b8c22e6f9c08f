package store_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/store"
)

func newMockStore(t *testing.T) (*store.SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("unexpected error creating sqlmock: %v", err)
	}
	db := sqlx.NewDb(mockDB, "sqlmock")
	return store.NewSQLStore(db, zap.NewNop()), mock
}

func TestSQLStore_SaveAlert(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	alert := &model.Alert{
		ID:          uuid.New(),
		Fingerprint: "fp1",
		Status:      model.AlertStatusReceived,
		AlertName:   "PodCrashLooping",
		Labels:      map[string]string{"pod": "checkout"},
		Timings:     model.AlertTimings{ReceivedAt: time.Now()},
	}

	mock.ExpectExec(`INSERT INTO alerts`).WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.SaveAlert(ctx, alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStore_GetAlert_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	id := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM alerts WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := s.GetAlert(ctx, id)
	if err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStore_GetAlert_Found(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	id := uuid.New()
	cols := []string{
		"id", "external_id", "fingerprint", "status", "severity", "alert_name", "summary",
		"labels", "annotations", "source_ref", "workflow_ref", "ai_analysis", "ai_confidence",
		"received_at", "triage_started_at", "triage_completed_at", "resolved_at", "repeat_count",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		id.String(), "", "fp1", "received", "critical", "PodCrashLooping", "",
		`{"pod":"checkout"}`, `{}`, "", "", nil, nil,
		time.Now(), nil, nil, nil, 0,
	)
	mock.ExpectQuery(`SELECT \* FROM alerts WHERE id = \$1`).WithArgs(id.String()).WillReturnRows(rows)

	got, err := s.GetAlert(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AlertName != "PodCrashLooping" {
		t.Errorf("got %q, want PodCrashLooping", got.AlertName)
	}
	if got.Labels["pod"] != "checkout" {
		t.Errorf("expected labels to round-trip, got %+v", got.Labels)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStore_RecordSinkOutput(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO sink_outputs`).WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.RecordSinkOutput(ctx, &store.SinkOutcome{
		ID:          uuid.New(),
		RunID:       uuid.New(),
		SinkRef:     model.RegistryKey{Kind: model.KindSink, Namespace: "default", Name: "stdout"},
		Attempt:     1,
		Success:     true,
		DeliveredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
