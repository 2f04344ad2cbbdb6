package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ChangeEvent is emitted for every mutation. The core only produces events;
// the append-only history store consuming them lives outside the service.
type ChangeEvent struct {
	ID         string         `json:"id"`
	Actor      string         `json:"actor"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	Payload    types.JSONText `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Pagination carries standard paging metadata in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes paging metadata from a total row count.
func NewPagination(page, pageSize, total int) *Pagination {
	if pageSize <= 0 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	pages := total / pageSize
	if total%pageSize > 0 {
		pages++
	}
	return &Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: pages}
}
