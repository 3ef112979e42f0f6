package db

import (
	"context"
	"encoding/json"
	"time"

	"firmadoc/internal/domain"

	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit record. There is deliberately no update or
// delete on this repository.
func (r *AuditRepository) Append(ctx context.Context, rec domain.AuditRecord) (domain.AuditRecord, error) {
	if r.db == nil {
		return domain.AuditRecord{}, errDBUnavailable
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	} else {
		rec.Timestamp = rec.Timestamp.UTC()
	}

	var details []byte
	if rec.Details != nil {
		encoded, err := json.Marshal(rec.Details)
		if err != nil {
			return domain.AuditRecord{}, err
		}
		details = encoded
	}

	model := AuditRecordModel{
		Action:     string(rec.Action),
		ActorID:    rec.ActorID,
		ContractID: rec.ContractID,
		OriginIP:   rec.OriginIP,
		Details:    details,
		Severity:   string(rec.Severity),
		Success:    rec.Success,
		Timestamp:  rec.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.AuditRecord{}, err
	}
	rec.ID = model.ID
	return rec, nil
}

func (r *AuditRepository) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	q := r.db.WithContext(ctx).Model(&AuditRecordModel{})
	if filter.ActorID != 0 {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.ContractID != "" {
		q = q.Where("contract_id = ?", filter.ContractID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", string(filter.Action))
	}
	if filter.Severity != "" {
		q = q.Where("severity = ?", string(filter.Severity))
	}
	if !filter.From.IsZero() {
		q = q.Where("timestamp >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		q = q.Where("timestamp <= ?", filter.To.UTC())
	}
	q = q.Order("timestamp DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var models []AuditRecordModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AuditRecord, 0, len(models))
	for _, model := range models {
		rec, err := auditRecordFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// DetectAnomalies groups an actor's recent events by action and
// reports the actions repeated more than threshold times inside the
// window.
func (r *AuditRepository) DetectAnomalies(ctx context.Context, actorID int64, window time.Duration, threshold int64) ([]domain.AnomalySignal, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	since := time.Now().UTC().Add(-window)

	type row struct {
		Action     string
		EventCount int64
		FirstEvent time.Time
		LastEvent  time.Time
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&AuditRecordModel{}).
		Select("action, COUNT(*) AS event_count, MIN(timestamp) AS first_event, MAX(timestamp) AS last_event").
		Where("actor_id = ? AND timestamp >= ?", actorID, since).
		Group("action").
		Having("COUNT(*) > ?", threshold).
		Order("event_count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.AnomalySignal, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.AnomalySignal{
			Action:     domain.AuditAction(r.Action),
			EventCount: r.EventCount,
			FirstEvent: r.FirstEvent,
			LastEvent:  r.LastEvent,
		})
	}
	return out, nil
}

func auditRecordFromModel(model AuditRecordModel) (domain.AuditRecord, error) {
	var details map[string]any
	if len(model.Details) > 0 {
		if err := json.Unmarshal(model.Details, &details); err != nil {
			return domain.AuditRecord{}, err
		}
	}
	return domain.AuditRecord{
		ID:         model.ID,
		Action:     domain.AuditAction(model.Action),
		ActorID:    model.ActorID,
		ContractID: model.ContractID,
		OriginIP:   model.OriginIP,
		Details:    details,
		Severity:   domain.AuditSeverity(model.Severity),
		Success:    model.Success,
		Timestamp:  model.Timestamp,
	}, nil
}
