// Package audit persists audit entries into the audit_logs collection and
// serves the per-hospital audit timeline.
package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

// Collection stores audit entries.
const Collection = "audit_logs"

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Store writes audit entries as documents. It satisfies shared.AuditWriter.
type Store struct {
	store docstore.Store
}

// NewStore constructs the writer.
func NewStore(store docstore.Store) *Store {
	return &Store{store: store}
}

var _ shared.AuditWriter = (*Store)(nil)

// WriteAudit appends one entry in its own transaction.
func (s *Store) WriteAudit(ctx context.Context, log shared.AuditLog) error {
	ref := docstore.NewRef(log.TenantID, Collection, uuid.NewString())
	return s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Create(ref, log)
	})
}

// Service serves the audit timeline.
type Service struct {
	store docstore.Store
}

// NewService creates the timeline service.
func NewService(store docstore.Store) *Service {
	return &Service{store: store}
}

// Timeline returns one page of entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.Export(ctx, filters)
	if err != nil {
		return Result{}, err
	}
	offset := (page - 1) * pageSize
	if offset > len(rows) {
		offset = len(rows)
	}
	end := offset + pageSize
	hasNext := end < len(rows)
	if end > len(rows) {
		end = len(rows)
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows[offset:end], Paging: paging}, nil
}

// Export returns every entry matching filters, newest first.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.store == nil {
		return nil, fmt.Errorf("audit: store not configured")
	}
	q := docstore.Query{Tenant: filters.TenantID, Collection: Collection, OrderBy: "at", Desc: true}
	if !filters.From.IsZero() {
		q = q.Where("at", docstore.OpGte, filters.From.UTC())
	}
	if !filters.To.IsZero() {
		q = q.Where("at", docstore.OpLt, filters.To.UTC())
	}
	if v := strings.TrimSpace(filters.Actor); v != "" {
		q = q.Where("actorId", docstore.OpEq, v)
	}
	if v := strings.TrimSpace(filters.Entity); v != "" {
		q = q.Where("entity", docstore.OpEq, v)
	}
	if v := strings.TrimSpace(filters.Action); v != "" {
		q = q.Where("action", docstore.OpEq, v)
	}
	snaps, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	rows := make([]TimelineRow, 0, len(snaps))
	for _, snap := range snaps {
		var entry shared.AuditLog
		if err := snap.Decode(&entry); err != nil {
			return nil, err
		}
		rows = append(rows, TimelineRow{
			ID:       snap.Ref.ID,
			At:       entry.At,
			Actor:    entry.ActorID,
			Action:   entry.Action,
			Entity:   entry.Entity,
			EntityID: entry.EntityID,
			Meta:     entry.Meta,
		})
	}
	return rows, nil
}
