// Package audit provides the tool invocation audit log for mcpchat.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcpjungle/mcpchat/internal/model"
	"gorm.io/gorm"
)

// DefaultListLimit is the number of records returned by ListInvocations when no limit is given.
const DefaultListLimit = 50

// AuditService stores and retrieves tool invocation records.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService creates a new AuditService backed by the given database.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service requires a database connection")
	}
	return &AuditService{db: db}, nil
}

// RecordInvocation saves a single tool invocation record.
func (a *AuditService) RecordInvocation(ctx context.Context, inv *model.ToolInvocation) error {
	if inv == nil {
		return errors.New("tool invocation record must not be nil")
	}
	if err := a.db.WithContext(ctx).Create(inv).Error; err != nil {
		return fmt.Errorf("failed to save invocation of tool %s: %w", inv.Tool, err)
	}
	return nil
}

// ListInvocations returns the most recent invocation records, newest first.
// If tool is not empty, only invocations of that tool are returned.
func (a *AuditService) ListInvocations(tool string, limit int) ([]model.ToolInvocation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	q := a.db.Order("id desc").Limit(limit)
	if tool != "" {
		q = q.Where("tool = ?", tool)
	}

	var records []model.ToolInvocation
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list tool invocations: %w", err)
	}
	return records, nil
}

// ListRound returns all invocation records of a single round, in the order they were made.
func (a *AuditService) ListRound(roundID string) ([]model.ToolInvocation, error) {
	var records []model.ToolInvocation
	if err := a.db.Where("round_id = ?", roundID).Order("id asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list invocations of round %s: %w", roundID, err)
	}
	return records, nil
}

// Close releases the database connection. It is safe to call more than once.
func (a *AuditService) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get audit database handle: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close audit database: %w", err)
	}
	return nil
}
