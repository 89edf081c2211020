package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predarb/internal/domain"
	"github.com/alanyoungcy/predarb/internal/ledger"
)

// executionHistoryLimit bounds how many recent executions each snapshot
// carries. Older executions remain queryable in Postgres.
const executionHistoryLimit = 500

// StateSource provides the in-memory capital state to snapshot. Satisfied
// by the ledger.
type StateSource interface {
	SnapshotState() ledger.Snapshot
}

// ExecutionHistory provides recent executions for snapshot inclusion.
// Satisfied by the Postgres execution store.
type ExecutionHistory interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Execution, error)
}

// StateArchiver implements domain.Archiver by serializing the ledger state
// to JSON and recent execution history to JSONL, then uploading both to
// blob storage. Snapshots are additive; nothing is deleted from the
// primary store.
type StateArchiver struct {
	writer domain.BlobWriter
	state  StateSource
	execs  ExecutionHistory // optional
	audit  domain.AuditStore // optional
	logger *slog.Logger
}

// NewStateArchiver creates a StateArchiver. execs and audit may be nil,
// in which case execution history and audit logging are skipped.
func NewStateArchiver(writer domain.BlobWriter, state StateSource, execs ExecutionHistory, audit domain.AuditStore, logger *slog.Logger) *StateArchiver {
	return &StateArchiver{
		writer: writer,
		state:  state,
		execs:  execs,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Archive uploads one state snapshot stamped with the given time. Keys
// embed an RFC 3339 timestamp so lexicographic listing is chronological:
//
//	snapshots/state/2025-01-31T12-00-00Z.json
//	snapshots/executions/2025-01-31T12-00-00Z.jsonl
func (a *StateArchiver) Archive(ctx context.Context, at time.Time) error {
	stamp := at.UTC().Format("2006-01-02T15-04-05Z")

	snap := a.state.SnapshotState()
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal state snapshot: %w", err)
	}

	stateKey := "snapshots/state/" + stamp + ".json"
	if err := a.writer.Write(ctx, stateKey, payload, "application/json"); err != nil {
		return fmt.Errorf("s3blob: upload state snapshot: %w", err)
	}

	execCount := 0
	if a.execs != nil {
		execs, err := a.execs.ListRecent(ctx, executionHistoryLimit)
		if err != nil {
			return fmt.Errorf("s3blob: snapshot execution history: %w", err)
		}
		if len(execs) > 0 {
			buf, err := marshalJSONL(execs)
			if err != nil {
				return fmt.Errorf("s3blob: marshal execution history: %w", err)
			}
			execKey := "snapshots/executions/" + stamp + ".jsonl"
			if err := a.writer.Write(ctx, execKey, buf, "application/x-ndjson"); err != nil {
				return fmt.Errorf("s3blob: upload execution history: %w", err)
			}
			execCount = len(execs)
		}
	}

	a.logger.InfoContext(ctx, "state snapshot archived",
		slog.String("key", stateKey),
		slog.Int("open_positions", len(snap.OpenPositions)),
		slog.Int("executions", execCount))

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.state", map[string]any{
			"key":            stateKey,
			"open_positions": len(snap.OpenPositions),
			"executions":     execCount,
		}); err != nil {
			a.logger.WarnContext(ctx, "audit log failed", slog.Any("error", err))
		}
	}

	return nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*StateArchiver)(nil)
