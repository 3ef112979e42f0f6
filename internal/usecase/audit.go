package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"firmadoc/internal/domain"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000

	// anomalyThreshold is the per-action repeat count inside the window
	// above which an actor is flagged.
	anomalyThreshold = 10
)

// AuditTrail appends and queries the append-only audit log. Every
// security-relevant operation in the core reports through here.
type AuditTrail struct {
	Records AuditRepository
	Clock   Clock
}

type AuditEntry struct {
	Action     domain.AuditAction
	ActorID    int64
	ContractID string
	OriginIP   string
	Details    map[string]any
	Severity   domain.AuditSeverity
	Success    bool
}

// Record appends one entry. The severity defaults from the action and
// outcome when the caller leaves it empty.
func (t *AuditTrail) Record(ctx context.Context, entry AuditEntry) error {
	severity := entry.Severity
	if severity == "" {
		severity = severityFor(entry.Action, entry.Success)
	}
	_, err := t.Records.Append(ctx, domain.AuditRecord{
		Action:     entry.Action,
		ActorID:    entry.ActorID,
		ContractID: entry.ContractID,
		OriginIP:   entry.OriginIP,
		Details:    entry.Details,
		Severity:   severity,
		Success:    entry.Success,
		Timestamp:  t.Clock().UTC(),
	})
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

func severityFor(action domain.AuditAction, success bool) domain.AuditSeverity {
	switch action {
	case domain.AuditUnauthorizedAccess:
		return domain.SeverityCritical
	case domain.AuditFailedAuth:
		return domain.SeverityWarning
	case domain.AuditRenderJobFailed:
		return domain.SeverityError
	}
	if !success {
		return domain.SeverityWarning
	}
	return domain.SeverityInfo
}

func (t *AuditTrail) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultQueryLimit
	}
	if filter.Limit > maxQueryLimit {
		filter.Limit = maxQueryLimit
	}
	return t.Records.Query(ctx, filter)
}

// SecurityEvents returns the WARNING-and-above records for an actor
// inside the window, newest first. An actor id of zero covers all
// actors.
func (t *AuditTrail) SecurityEvents(ctx context.Context, actorID int64, from, to time.Time, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	var events []domain.AuditRecord
	for _, severity := range []domain.AuditSeverity{domain.SeverityWarning, domain.SeverityError, domain.SeverityCritical} {
		batch, err := t.Records.Query(ctx, domain.AuditFilter{
			ActorID:  actorID,
			Severity: severity,
			From:     from,
			To:       to,
			Limit:    limit,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, batch...)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// DetectAnomalies flags actions the actor repeated more than the
// threshold inside the window.
func (t *AuditTrail) DetectAnomalies(ctx context.Context, actorID int64, window time.Duration) ([]domain.AnomalySignal, error) {
	if window <= 0 {
		window = time.Hour
	}
	return t.Records.DetectAnomalies(ctx, actorID, window, anomalyThreshold)
}
