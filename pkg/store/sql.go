package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/incidentctl/controlplane/pkg/model"
)

// SQLStore is a Store backed by a relational database reachable through
// database/sql (spec §6 "Store schema": alerts, workflows, source_events,
// workflow_steps, sink_outputs, custom_resources). It is driver-agnostic:
// OpenPostgres and OpenSQLite both build one, differing only in
// the driver registered on the *sqlx.DB passed in.
type SQLStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLStore wraps an already-open *sqlx.DB. Callers open the connection
// with "pgx" or "sqlite3" registered under database/sql and pass it here;
// schema migrations are applied separately with goose (see migrations/).
func NewSQLStore(db *sqlx.DB, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{db: db, logger: logger}
}

type alertRow struct {
	ID                string  `db:"id"`
	ExternalID        string  `db:"external_id"`
	Fingerprint       string  `db:"fingerprint"`
	Status            string  `db:"status"`
	Severity          string  `db:"severity"`
	AlertName         string  `db:"alert_name"`
	Summary           string  `db:"summary"`
	Labels            string  `db:"labels"`
	Annotations       string  `db:"annotations"`
	SourceRef         string  `db:"source_ref"`
	WorkflowRef       string  `db:"workflow_ref"`
	AIAnalysis        *string `db:"ai_analysis"`
	AIConfidence      *string `db:"ai_confidence"`
	ReceivedAt        time.Time  `db:"received_at"`
	TriageStartedAt   *time.Time `db:"triage_started_at"`
	TriageCompletedAt *time.Time `db:"triage_completed_at"`
	ResolvedAt        *time.Time `db:"resolved_at"`
	RepeatCount       int        `db:"repeat_count"`
}

func toAlertRow(a *model.Alert) (*alertRow, error) {
	labels, err := json.Marshal(a.Labels)
	if err != nil {
		return nil, err
	}
	annotations, err := json.Marshal(a.Annotations)
	if err != nil {
		return nil, err
	}
	row := &alertRow{
		ID:                a.ID.String(),
		ExternalID:        a.ExternalID,
		Fingerprint:       a.Fingerprint,
		Status:            string(a.Status),
		Severity:          a.Severity,
		AlertName:         a.AlertName,
		Summary:           a.Summary,
		Labels:            string(labels),
		Annotations:       string(annotations),
		SourceRef:         a.SourceRef,
		WorkflowRef:       a.WorkflowRef,
		ReceivedAt:        a.Timings.ReceivedAt,
		TriageStartedAt:   a.Timings.TriageStartedAt,
		TriageCompletedAt: a.Timings.TriageCompletedAt,
		ResolvedAt:        a.Timings.ResolvedAt,
		RepeatCount:       a.RepeatCount,
	}
	if a.AIAnalysis != nil {
		b, err := json.Marshal(a.AIAnalysis)
		if err != nil {
			return nil, err
		}
		s := string(b)
		row.AIAnalysis = &s
	}
	if a.AIConfidence != nil {
		s := a.AIConfidence.String()
		row.AIConfidence = &s
	}
	return row, nil
}

func (r *alertRow) toModel() (*model.Alert, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, err
	}
	a := &model.Alert{
		ID:          id,
		ExternalID:  r.ExternalID,
		Fingerprint: r.Fingerprint,
		Status:      model.AlertStatus(r.Status),
		Severity:    r.Severity,
		AlertName:   r.AlertName,
		Summary:     r.Summary,
		SourceRef:   r.SourceRef,
		WorkflowRef: r.WorkflowRef,
		RepeatCount: r.RepeatCount,
		Timings: model.AlertTimings{
			ReceivedAt:        r.ReceivedAt,
			TriageStartedAt:   r.TriageStartedAt,
			TriageCompletedAt: r.TriageCompletedAt,
			ResolvedAt:        r.ResolvedAt,
		},
	}
	if r.Labels != "" {
		if err := json.Unmarshal([]byte(r.Labels), &a.Labels); err != nil {
			return nil, err
		}
	}
	if r.Annotations != "" {
		if err := json.Unmarshal([]byte(r.Annotations), &a.Annotations); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// SaveAlert upserts the alerts row by id.
func (s *SQLStore) SaveAlert(ctx context.Context, alert *model.Alert) error {
	row, err := toAlertRow(alert)
	if err != nil {
		return err
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO alerts (
			id, external_id, fingerprint, status, severity, alert_name, summary,
			labels, annotations, source_ref, workflow_ref, ai_analysis, ai_confidence,
			received_at, triage_started_at, triage_completed_at, resolved_at, repeat_count
		) VALUES (
			:id, :external_id, :fingerprint, :status, :severity, :alert_name, :summary,
			:labels, :annotations, :source_ref, :workflow_ref, :ai_analysis, :ai_confidence,
			:received_at, :triage_started_at, :triage_completed_at, :resolved_at, :repeat_count
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, summary = EXCLUDED.summary,
			ai_analysis = EXCLUDED.ai_analysis, ai_confidence = EXCLUDED.ai_confidence,
			triage_started_at = EXCLUDED.triage_started_at,
			triage_completed_at = EXCLUDED.triage_completed_at,
			resolved_at = EXCLUDED.resolved_at, repeat_count = EXCLUDED.repeat_count
	`, row)
	if err != nil {
		s.logger.Error("save alert failed", zap.String("alert_id", row.ID), zap.Error(err))
		return err
	}
	return nil
}

// GetAlert fetches the alerts row by id.
func (s *SQLStore) GetAlert(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	var row alertRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM alerts WHERE id = $1`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

// ListOpenAlertsByFingerprint returns every non-resolved alert sharing
// fingerprint, most recently received first.
func (s *SQLStore) ListOpenAlertsByFingerprint(ctx context.Context, fingerprint string) ([]*model.Alert, error) {
	var rows []alertRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM alerts
		WHERE fingerprint = $1 AND status != $2
		ORDER BY received_at DESC
	`, fingerprint, string(model.AlertStatusResolved))
	if err != nil {
		return nil, err
	}

	out := make([]*model.Alert, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

type workflowRunRow struct {
	RunID         string  `db:"run_id"`
	WorkflowKind  string  `db:"workflow_kind"`
	WorkflowNS    string  `db:"workflow_namespace"`
	WorkflowName  string  `db:"workflow_name"`
	TriggerSource string  `db:"trigger_source"`
	State         string  `db:"state"`
	ContextJSON   string  `db:"context_json"`
	OutputsJSON   *string `db:"outputs_json"`
	Error         string  `db:"error"`
	CreatedAt     time.Time  `db:"created_at"`
	StartedAt     *time.Time `db:"started_at"`
	CompletedAt   *time.Time `db:"completed_at"`
}

func toWorkflowRunRow(run *model.WorkflowRun) (*workflowRunRow, error) {
	ctxJSON, err := json.Marshal(run.Context)
	if err != nil {
		return nil, err
	}
	row := &workflowRunRow{
		RunID:         run.RunID.String(),
		WorkflowKind:  string(run.WorkflowRef.Kind),
		WorkflowNS:    run.WorkflowRef.Namespace,
		WorkflowName:  run.WorkflowRef.Name,
		TriggerSource: run.TriggerSource,
		State:         string(run.State),
		ContextJSON:   string(ctxJSON),
		Error:         run.Error,
		CreatedAt:     run.CreatedAt,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
	}
	if run.Outputs != nil {
		b, err := json.Marshal(run.Outputs)
		if err != nil {
			return nil, err
		}
		s := string(b)
		row.OutputsJSON = &s
	}
	return row, nil
}

// CreateWorkflowRun inserts a new workflows row in the pending state.
func (s *SQLStore) CreateWorkflowRun(ctx context.Context, run *model.WorkflowRun) error {
	row, err := toWorkflowRunRow(run)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO workflows (
			run_id, workflow_kind, workflow_namespace, workflow_name, trigger_source,
			state, context_json, outputs_json, error, created_at, started_at, completed_at
		) VALUES (
			:run_id, :workflow_kind, :workflow_namespace, :workflow_name, :trigger_source,
			:state, :context_json, :outputs_json, :error, :created_at, :started_at, :completed_at
		)
	`, row)
	return err
}

// GetWorkflowRun is not used by the in-process engine (which holds the run
// in memory for the run's lifetime) but is provided for status queries and
// crash-recovery tooling.
func (s *SQLStore) GetWorkflowRun(ctx context.Context, runID uuid.UUID) (*model.WorkflowRun, error) {
	var row workflowRunRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM workflows WHERE run_id = $1`, runID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(row.RunID)
	if err != nil {
		return nil, err
	}
	run := &model.WorkflowRun{
		RunID: id,
		WorkflowRef: model.RegistryKey{
			Kind: model.Kind(row.WorkflowKind), Namespace: row.WorkflowNS, Name: row.WorkflowName,
		},
		TriggerSource: row.TriggerSource,
		State:         model.RunState(row.State),
		Error:         row.Error,
		CreatedAt:     row.CreatedAt,
		StartedAt:     row.StartedAt,
		CompletedAt:   row.CompletedAt,
	}
	if err := json.Unmarshal([]byte(row.ContextJSON), &run.Context); err != nil {
		return nil, err
	}
	if row.OutputsJSON != nil {
		if err := json.Unmarshal([]byte(*row.OutputsJSON), &run.Outputs); err != nil {
			return nil, err
		}
	}
	return run, nil
}

// UpdateWorkflowProgress persists the run's current state and context.
func (s *SQLStore) UpdateWorkflowProgress(ctx context.Context, run *model.WorkflowRun) error {
	row, err := toWorkflowRunRow(run)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		UPDATE workflows SET state = :state, context_json = :context_json,
			started_at = :started_at
		WHERE run_id = :run_id
	`, row)
	return err
}

// CompleteWorkflow persists the run's terminal state, outputs, and error.
func (s *SQLStore) CompleteWorkflow(ctx context.Context, run *model.WorkflowRun) error {
	row, err := toWorkflowRunRow(run)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		UPDATE workflows SET state = :state, context_json = :context_json,
			outputs_json = :outputs_json, error = :error, completed_at = :completed_at
		WHERE run_id = :run_id
	`, row)
	return err
}

// RecordSourceEvent appends a source_events row.
func (s *SQLStore) RecordSourceEvent(ctx context.Context, event *SourceEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_events (id, source_kind, source_namespace, source_name, received_at, fingerprint, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.ID.String(), string(event.SourceRef.Kind), event.SourceRef.Namespace, event.SourceRef.Name,
		event.ReceivedAt, event.Fingerprint, event.RawPayload)
	return err
}

// RecordSinkOutput appends a sink_outputs row.
func (s *SQLStore) RecordSinkOutput(ctx context.Context, outcome *SinkOutcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sink_outputs (id, run_id, sink_kind, sink_namespace, sink_name, attempt, success, error, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, outcome.ID.String(), outcome.RunID.String(), string(outcome.SinkRef.Kind), outcome.SinkRef.Namespace,
		outcome.SinkRef.Name, outcome.Attempt, outcome.Success, outcome.Error, outcome.DeliveredAt)
	return err
}

var _ Store = (*SQLStore)(nil)
