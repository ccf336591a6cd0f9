package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/e-tracker/tasktrack/internal/db"
	"github.com/e-tracker/tasktrack/internal/model"
	"github.com/e-tracker/tasktrack/internal/viewmodel"
)

// taskView is the wire shape of a task. Timestamps travel as epoch
// milliseconds, matching the persisted layout.
type taskView struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Priority         string `json:"priority"`
	Status           string `json:"status"`
	DueDate          *int64 `json:"due_date"`
	CreatedTimestamp int64  `json:"created_timestamp"`
	IsOverdue        bool   `json:"is_overdue"`
}

func (s *Server) toView(t model.Task) taskView {
	view := taskView{
		ID:               t.ID,
		Title:            t.Title,
		Description:      t.Description,
		Priority:         string(t.Priority),
		Status:           string(t.Status),
		CreatedTimestamp: t.CreatedAt.UnixMilli(),
		IsOverdue:        t.IsOverdue(s.now()),
	}
	if t.DueDate != nil {
		millis := t.DueDate.UnixMilli()
		view.DueDate = &millis
	}
	return view
}

type taskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	Status      *string `json:"status"`
	DueDate     *int64  `json:"due_date"`
}

// handleListTasks mirrors the current derived UI state. Optional query
// params feed the view-model's criteria setters first.
func (s *Server) handleListTasks(c *gin.Context) {
	s.vmMu.Lock()
	defer s.vmMu.Unlock()

	if !s.applyCriteria(c) {
		return
	}

	state := s.vm.UIState().Get()
	body := gin.H{"state": string(state.Kind)}
	switch state.Kind {
	case viewmodel.UIError:
		body["error"] = state.Message
	case viewmodel.UISuccess:
		views := make([]taskView, 0, len(state.Tasks))
		for _, task := range state.Tasks {
			views = append(views, s.toView(task))
		}
		body["tasks"] = views
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) applyCriteria(c *gin.Context) bool {
	if search, ok := c.GetQuery("search"); ok {
		s.vm.UpdateSearchQuery(search)
	}
	if raw, ok := c.GetQuery("status"); ok {
		if raw == "" {
			s.vm.UpdateFilterStatus(nil)
		} else {
			status, err := model.ParseStatus(raw)
			if err != nil {
				s.respondError(c, http.StatusBadRequest, err)
				return false
			}
			s.vm.UpdateFilterStatus(&status)
		}
	}
	if raw, ok := c.GetQuery("priority"); ok {
		if raw == "" {
			s.vm.UpdateFilterPriority(nil)
		} else {
			priority, err := model.ParsePriority(raw)
			if err != nil {
				s.respondError(c, http.StatusBadRequest, err)
				return false
			}
			s.vm.UpdateFilterPriority(&priority)
		}
	}
	if raw, ok := c.GetQuery("sort"); ok {
		order, err := model.ParseSortOrder(raw)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return false
		}
		s.vm.UpdateSortOrder(order)
	}
	return true
}

// handleSummary reports per-status counts and the overdue backlog.
func (s *Server) handleSummary(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	overdue, err := s.repo.ListOverdue(ctx, s.now())
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	byStatus := make(map[string]int, len(counts))
	total := 0
	for status, count := range counts {
		byStatus[string(status)] = count
		total += count
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"by_status": byStatus,
		"overdue":   len(overdue),
	})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	s.vmMu.Lock()
	defer s.vmMu.Unlock()

	s.vm.ResetForm()
	if !s.applyForm(c, req) {
		return
	}

	if err := s.vm.SaveTask(c.Request.Context()); err != nil {
		s.respondSaveError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "created"})
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	s.vmMu.Lock()
	defer s.vmMu.Unlock()

	if err := s.vm.LoadTaskForEditing(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.respondError(c, http.StatusNotFound, err)
		} else {
			s.respondError(c, http.StatusInternalServerError, err)
		}
		return
	}

	if !s.applyForm(c, req) {
		return
	}

	if err := s.vm.SaveTask(c.Request.Context()); err != nil {
		s.respondSaveError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// applyForm dispatches the provided fields through the view-model's
// per-field operations, exactly as a form screen would.
func (s *Server) applyForm(c *gin.Context, req taskRequest) bool {
	if req.Title != nil {
		s.vm.UpdateFormTitle(*req.Title)
	}
	if req.Description != nil {
		s.vm.UpdateFormDescription(*req.Description)
	}
	if req.Priority != nil {
		priority, err := model.ParsePriority(*req.Priority)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return false
		}
		s.vm.UpdateFormPriority(priority)
	}
	if req.Status != nil {
		status, err := model.ParseStatus(*req.Status)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return false
		}
		s.vm.UpdateFormStatus(status)
	}
	if req.DueDate != nil {
		due := time.UnixMilli(*req.DueDate)
		s.vm.UpdateFormDueDate(&due)
	}
	return true
}

func (s *Server) respondSaveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, viewmodel.ErrInvalidForm):
		s.respondError(c, http.StatusBadRequest, err)
	case errors.Is(err, db.ErrNotFound):
		s.respondError(c, http.StatusNotFound, err)
	default:
		s.respondError(c, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := s.vm.DeleteTask(c.Request.Context(), id); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleEvents streams one-shot actions as server-sent events until the
// client goes away. Late subscribers do not see earlier actions.
func (s *Server) handleEvents(c *gin.Context) {
	actions, cancel := s.vm.Actions().Subscribe()
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case action, ok := <-actions:
			if !ok {
				return false
			}
			c.SSEvent(string(action.Kind), gin.H{"message": action.Message})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
