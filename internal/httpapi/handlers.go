package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "focustrack/internal/infrastructure/errors"
	"focustrack/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type stopRequest struct {
	SplitAcrossDays bool `json:"splitAcrossDays"`
}

// writeError maps classified store errors to HTTP status codes
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := apperrors.ClassifyError(err)
	switch code {
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeValidation, apperrors.ErrCodeConstraint, apperrors.ErrCodeDuplicate:
		status = http.StatusBadRequest
	case apperrors.ErrCodeTimeout, apperrors.ErrCodeBusy:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, errorResponse{Error: err.Error(), Code: code.String()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg, Code: apperrors.ErrCodeValidation.String()})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

// parseDay reads a YYYY-MM-DD query parameter as a local date, defaulting to fallback
func parseDay(c *gin.Context, name string, fallback time.Time) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	day, err := time.ParseInLocation(types.DateLayout, raw, time.Local)
	if err != nil {
		badRequest(c, "invalid "+name+", expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return day, true
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Status())
}

func (s *Server) handleStart(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.svc.StartTimer(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.svc.Status())
}

func (s *Server) handleStop(c *gin.Context) {
	var req stopRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if split, _ := strconv.ParseBool(c.Query("split")); split {
		req.SplitAcrossDays = true
	}
	if err := s.svc.StopTimer(c.Request.Context(), req.SplitAcrossDays); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.svc.Status())
}

func (s *Server) handleSync(c *gin.Context) {
	s.svc.SyncTimer()
	c.JSON(http.StatusOK, s.svc.Status())
}

func (s *Server) handleResume(c *gin.Context) {
	s.svc.ResumeTimer()
	c.JSON(http.StatusOK, s.svc.Status())
}

func (s *Server) handleDirtyList(c *gin.Context) {
	snap := s.svc.DirtySnapshot()
	out := make(map[string]types.DirtyTaskRecord, len(snap))
	for id, rec := range snap {
		out[strconv.FormatInt(id, 10)] = rec
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleDirtyGet(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, found := s.svc.DirtyEntry(id)
	if !found {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no pending time for task", Code: apperrors.ErrCodeNotFound.String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec, "effective": rec.Effective()})
}

func (s *Server) handleDirtyClear(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	s.svc.ClearDirty(id)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleFlush(c *gin.Context) {
	if err := s.svc.Flush(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pendingTasks": len(s.svc.DirtySnapshot())})
}

func (s *Server) handleTasksForDate(c *gin.Context) {
	day, ok := parseDay(c, "date", time.Now())
	if !ok {
		return
	}
	occurrences, err := s.svc.TasksForDate(c.Request.Context(), day)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, occurrences)
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req types.NewEvent
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	task, err := s.svc.CreateTask(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req types.EventUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	req.ID = id
	task, err := s.svc.UpdateTask(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.svc.DeleteTask(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSummary(c *gin.Context) {
	now := time.Now()
	to, ok := parseDay(c, "to", now)
	if !ok {
		return
	}
	from, ok := parseDay(c, "from", to.AddDate(0, 0, -6))
	if !ok {
		return
	}
	summaries, err := s.svc.Summary(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}
