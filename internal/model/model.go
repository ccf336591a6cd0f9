package model

import (
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Explicit rank tables so sorting does not depend on declaration order.
var priorityRank = map[Priority]int{
	PriorityLow:    0,
	PriorityMedium: 1,
	PriorityHigh:   2,
}

func (p Priority) Rank() int {
	return priorityRank[p]
}

func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

func ParsePriority(value string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(value)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", value)
	}
	return p, nil
}

type Status string

const (
	StatusToDo       Status = "TO_DO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

var statusRank = map[Status]int{
	StatusToDo:       0,
	StatusInProgress: 1,
	StatusDone:       2,
}

func (s Status) Rank() int {
	return statusRank[s]
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(value)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", value)
	}
	return s, nil
}

type SortOrder string

const (
	SortPriorityAsc     SortOrder = "PRIORITY_ASC"
	SortPriorityDesc    SortOrder = "PRIORITY_DESC"
	SortDueDateAsc      SortOrder = "DUE_DATE_ASC"
	SortDueDateDesc     SortOrder = "DUE_DATE_DESC"
	SortStatus          SortOrder = "STATUS"
	SortCreatedDateAsc  SortOrder = "CREATED_DATE_ASC"
	SortCreatedDateDesc SortOrder = "CREATED_DATE_DESC"
)

var sortOrders = map[SortOrder]struct{}{
	SortPriorityAsc:     {},
	SortPriorityDesc:    {},
	SortDueDateAsc:      {},
	SortDueDateDesc:     {},
	SortStatus:          {},
	SortCreatedDateAsc:  {},
	SortCreatedDateDesc: {},
}

func (o SortOrder) Valid() bool {
	_, ok := sortOrders[o]
	return ok
}

func ParseSortOrder(value string) (SortOrder, error) {
	o := SortOrder(strings.ToUpper(strings.TrimSpace(value)))
	if !o.Valid() {
		return "", fmt.Errorf("unknown sort order %q", value)
	}
	return o, nil
}

// Task is the sole persisted entity. ID 0 means "not yet persisted";
// CreatedAt is set once on insert and never mutated afterwards.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsOverdue reports whether the due date has passed. Status is
// deliberately ignored: a DONE task past its due date still counts.
func (t Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now)
}

// Criteria is the transient search/filter/sort selection held by the
// view-model. Nil filters mean "not applied".
type Criteria struct {
	Search   string
	Status   *Status
	Priority *Priority
	Sort     SortOrder
}

func DefaultCriteria() Criteria {
	return Criteria{Sort: SortCreatedDateDesc}
}
