package audit

import (
	"context"
	"fmt"
	"time"
)

// Filters narrow the audit listing. Zero values mean "no filter".
type Filters struct {
	ActorUserID  *int64
	TargetUserID *int64
	Action       Action
	From         time.Time
	To           time.Time
	Page         int
	PageSize     int
}

// PagingInfo describes the returned window.
type PagingInfo struct {
	Page     int
	PageSize int
	PrevPage int
	NextPage int
	HasNext  bool
}

// Result wraps a listing window with its paging information.
type Result struct {
	Entries []Entry
	Paging  PagingInfo
}

// Repository is the read-side persistence needed by the query service.
type Repository interface {
	ListEntries(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error)
}

// Service serves the read-only compliance query surface. It never writes;
// the Recorder is the only writer.
type Service struct {
	repo Repository
}

// NewService constructs the audit query service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns one page of entries matching the filters, newest first.
func (s *Service) List(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	// Fetch one extra row to detect a following page.
	rows, err := s.repo.ListEntries(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Entries: rows, Paging: paging}, nil
}
