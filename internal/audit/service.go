package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brodesk/brodesk/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Service serves the admin audit timeline.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit entries. Only admins may read it.
func (s *Service) Timeline(ctx context.Context, actor *shared.Principal, filters TimelineFilters) (Result, error) {
	if !actor.IsAdmin() {
		return Result{}, shared.ErrForbidden
	}
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
	params := windowParams(filters)
	params.Offset = int32((page - 1) * pageSize)
	params.Limit = int32(pageSize + 1)
	rows, err := s.repo.Window(ctx, params)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// ExportCSV renders every entry matching filters as CSV.
func (s *Service) ExportCSV(ctx context.Context, actor *shared.Principal, filters TimelineFilters) ([]byte, error) {
	if !actor.IsAdmin() {
		return nil, shared.ErrForbidden
	}
	rows, err := s.repo.Window(ctx, windowParams(filters))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"at", "actor_id", "actor_name", "action", "entity", "entity_id", "meta"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		meta := ""
		if len(row.Meta) > 0 {
			data, err := json.Marshal(row.Meta)
			if err != nil {
				return nil, fmt.Errorf("encode meta: %w", err)
			}
			meta = string(data)
		}
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			row.ActorID.String(),
			row.ActorName,
			row.Action,
			row.Entity,
			row.EntityID,
			meta,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func windowParams(filters TimelineFilters) WindowParams {
	return WindowParams{
		From:   toPgTime(filters.From),
		To:     toPgTime(filters.To),
		Actor:  optionalUUID(filters.ActorID),
		Entity: optionalText(filters.Entity),
		Action: optionalText(filters.Action),
	}
}
