// Package audit implements the append-only audit trail (spec §4.7 "All
// tool invocations log {tool, args_digest, duration, outcome, risk} to the
// audit trail") generalized to also cover approval-gate decisions (spec
// §4.6), per SPEC_FULL.md's "Supplemented features" §1. Entries are
// immutable once appended; there is no update or delete operation.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/incidentctl/controlplane/pkg/model"
)

// EventKind distinguishes the two event shapes the audit trail carries.
type EventKind string

const (
	EventToolInvocation EventKind = "tool_invocation"
	EventApprovalDecision EventKind = "approval_decision"
)

// Entry is one append-only audit record.
type Entry struct {
	ID         uuid.UUID        `json:"id"`
	Kind       EventKind        `json:"kind"`
	RunID      uuid.UUID        `json:"run_id"`
	Timestamp  time.Time        `json:"timestamp"`

	// Tool invocation fields (spec §4.7).
	Tool       string           `json:"tool,omitempty"`
	ArgsDigest string           `json:"args_digest,omitempty"`
	Duration   time.Duration    `json:"duration,omitempty"`
	Outcome    string           `json:"outcome,omitempty"`
	Risk       model.RiskLevel  `json:"risk,omitempty"`

	// Approval decision fields (spec §4.6).
	Request  *model.PendingToolCall `json:"request,omitempty"`
	Approved bool                   `json:"approved,omitempty"`
	Approver string                 `json:"approver,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
}

// Log is the append-only audit trail. Writes and reads take the same
// mutex: appends hold it only to extend the backing slice, and reads hold
// it while copying out a snapshot. There is no lock-free read path.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

// New creates an empty in-process audit log.
func New() *Log {
	return &Log{}
}

// ArgsDigest computes a stable digest of a tool's arguments for the audit
// record, so raw argument values (which may carry cluster-sensitive data)
// never need to be stored verbatim.
func ArgsDigest(args map[string]interface{}) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	canon := make(map[string]interface{}, len(args))
	for _, k := range keys {
		canon[k] = args[k]
	}
	b, _ := json.Marshal(canon)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// RecordToolInvocation appends a tool-invocation entry (spec §4.7).
func (l *Log) RecordToolInvocation(runID uuid.UUID, tool string, args map[string]interface{}, duration time.Duration, outcome string, risk model.RiskLevel) Entry {
	e := Entry{
		ID:         uuid.New(),
		Kind:       EventToolInvocation,
		RunID:      runID,
		Timestamp:  time.Now(),
		Tool:       tool,
		ArgsDigest: ArgsDigest(args),
		Duration:   duration,
		Outcome:    outcome,
		Risk:       risk,
	}
	l.append(e)
	return e
}

// RecordApprovalDecision appends an approval-gate decision entry (spec §4.6).
func (l *Log) RecordApprovalDecision(runID uuid.UUID, request *model.PendingToolCall, approved bool, approver, reason string) Entry {
	e := Entry{
		ID:        uuid.New(),
		Kind:      EventApprovalDecision,
		RunID:     runID,
		Timestamp: time.Now(),
		Request:   request,
		Approved:  approved,
		Approver:  approver,
		Reason:    reason,
	}
	l.append(e)
	return e
}

func (l *Log) append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// ForRun returns a snapshot of every entry recorded for runID, in append order.
func (l *Log) ForRun(runID uuid.UUID) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}

// All returns a snapshot of every entry recorded so far.
func (l *Log) All() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
