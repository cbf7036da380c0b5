package models

import "time"

// Report is a saved report definition: which fields to select, how to
// filter, group and order them. Schedules and ad-hoc exports reference it.
type Report struct {
	ID          int           `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	OwnerID     int           `json:"owner_id"`
	FieldIDs    []int         `json:"field_ids"`
	Filters     []QueryFilter `json:"filters,omitempty"`
	GroupBy     []int         `json:"group_by,omitempty"`
	OrderBy     []OrderClause `json:"order_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// QueryRequest builds the ad-hoc request equivalent of the saved report,
// with extra filters appended.
func (r Report) QueryRequest(extraFilters []QueryFilter, limit int) QueryRequest {
	filters := make([]QueryFilter, 0, len(r.Filters)+len(extraFilters))
	filters = append(filters, r.Filters...)
	filters = append(filters, extraFilters...)

	return QueryRequest{
		FieldIDs: r.FieldIDs,
		Filters:  filters,
		GroupBy:  r.GroupBy,
		OrderBy:  r.OrderBy,
		Limit:    limit,
	}
}

// ReportCreateRequest creates a new report definition
type ReportCreateRequest struct {
	Name        string        `json:"name" validate:"required,max=200"`
	Description string        `json:"description,omitempty" validate:"max=2000"`
	FieldIDs    []int         `json:"field_ids" validate:"required,min=1"`
	Filters     []QueryFilter `json:"filters,omitempty"`
	GroupBy     []int         `json:"group_by,omitempty"`
	OrderBy     []OrderClause `json:"order_by,omitempty"`
}

// ReportUpdateRequest mutates an existing report; nil fields are unchanged
type ReportUpdateRequest struct {
	Name        *string        `json:"name,omitempty" validate:"omitempty,max=200"`
	Description *string        `json:"description,omitempty" validate:"omitempty,max=2000"`
	FieldIDs    []int          `json:"field_ids,omitempty"`
	Filters     *[]QueryFilter `json:"filters,omitempty"`
	GroupBy     *[]int         `json:"group_by,omitempty"`
	OrderBy     *[]OrderClause `json:"order_by,omitempty"`
}

// PaginationInfo contains pagination metadata
type PaginationInfo struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// ErrorResponse is the API error envelope
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
