package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/psepar/demandboard/internal/auth"
	"github.com/psepar/demandboard/internal/export"
	"github.com/psepar/demandboard/internal/model"
	"github.com/psepar/demandboard/internal/repo"
	"github.com/psepar/demandboard/internal/store"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string `json:"token"`

	// RefreshToken lets this client, and only this client, resume the
	// session later. Empty when session persistence is disabled.
	RefreshToken string `json:"refresh_token,omitempty"`

	Session model.Session `json:"session"`
}

// httpError maps domain errors to status codes: validation failures are
// 400 (surfaced inline by the view), permission 403, missing rows 404,
// and anything else is treated as a transient store failure.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, repo.ErrEmptyTitle),
		errors.Is(err, repo.ErrNoAssignees),
		errors.Is(err, repo.ErrEmptyComment),
		errors.Is(err, repo.ErrInvalidPriority),
		errors.Is(err, repo.ErrInvalidCategory),
		errors.Is(err, repo.ErrInvalidStatus),
		errors.Is(err, repo.ErrInvalidProgress):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, repo.ErrPermissionDenied):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, repo.ErrTaskNotFound), errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, "store unavailable, try again")
	}
}

func (s *Server) handleLookup(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	user, hasProfile, err := s.auth.Lookup(c.Request().Context(), req.Email)
	if errors.Is(err, auth.ErrUnknownUser) {
		return echo.NewHTTPError(http.StatusNotFound, "email not in allowlist")
	}
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"user":        user,
		"has_profile": hasProfile,
	})
}

func (s *Server) handleLogin(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	session, err := s.auth.Login(c.Request().Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrUnknownUser):
		return echo.NewHTTPError(http.StatusNotFound, "email not in allowlist")
	case errors.Is(err, auth.ErrNoProfile):
		return echo.NewHTTPError(http.StatusPreconditionRequired, "password creation required")
	case errors.Is(err, auth.ErrWrongPassword):
		return echo.NewHTTPError(http.StatusUnauthorized, "wrong password")
	case err != nil:
		return httpError(err)
	}

	return s.issueSession(c, session)
}

func (s *Server) handleRegister(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	session, err := s.auth.Register(c.Request().Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrUnknownUser):
		return echo.NewHTTPError(http.StatusNotFound, "email not in allowlist")
	case errors.Is(err, auth.ErrWeakPassword):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrProfileExists):
		return echo.NewHTTPError(http.StatusConflict, "profile already exists")
	case err != nil:
		return httpError(err)
	}

	return s.issueSession(c, session)
}

// issueSession returns a token for the session plus an opaque refresh
// token under which the session record is persisted, so a restarted
// client can resume without re-authenticating. The refresh token is the
// client's capability: resumption requires presenting it.
func (s *Server) issueSession(c echo.Context, session model.Session) error {
	token, err := s.tokens.Issue(session)
	if err != nil {
		return httpError(err)
	}

	var refresh string
	if s.sessions != nil {
		refresh = uuid.NewString()
		if err := s.sessions.Save(refresh, session); err != nil {
			s.log.Warnf("persisting session: %v", err)
			refresh = ""
		}
	}

	return c.JSON(http.StatusOK, sessionResponse{
		Token:        token,
		RefreshToken: refresh,
		Session:      session,
	})
}

// handleResumeSession reissues a token for the session persisted under
// the caller's refresh token. Without a valid refresh token nothing is
// served: the persisted record belongs to the client that logged in,
// not to whoever asks.
func (s *Server) handleResumeSession(c echo.Context) error {
	refresh := c.Request().Header.Get(refreshTokenHeader)
	if refresh == "" {
		refresh = c.QueryParam("refresh_token")
	}
	if refresh == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing refresh token")
	}
	if s.sessions == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session persistence disabled")
	}

	session, err := s.sessions.Load(refresh)
	if err != nil {
		return httpError(err)
	}
	if session == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no persisted session")
	}

	token, err := s.tokens.Issue(*session)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sessionResponse{
		Token:        token,
		RefreshToken: refresh,
		Session:      *session,
	})
}

func (s *Server) handleLogout(c echo.Context) error {
	s.dropInbox(s.session(c).Email)
	if refresh := c.Request().Header.Get(refreshTokenHeader); refresh != "" && s.sessions != nil {
		if err := s.sessions.Clear(refresh); err != nil {
			s.log.Warnf("clearing session: %v", err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListTasks(c echo.Context) error {
	if priority := c.QueryParam("priority"); priority != "" {
		if !model.ValidPriority(priority) {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown priority level")
		}
		return c.JSON(http.StatusOK, s.repo.ByPriority(priority))
	}
	return c.JSON(http.StatusOK, s.repo.Tasks())
}

func (s *Server) handleCreateTask(c echo.Context) error {
	var draft model.Task
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	created, err := s.repo.Create(c.Request().Context(), s.session(c), draft)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) handleSetStatus(c echo.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	if err := s.repo.SetStatus(c.Request().Context(), c.Param("id"), req.Status); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSetPriority(c echo.Context) error {
	var req struct {
		Priority string `json:"priority"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	if err := s.repo.SetPriority(c.Request().Context(), c.Param("id"), req.Priority); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSetProgress(c echo.Context) error {
	var req struct {
		Progress int `json:"progress"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	advisory, err := s.repo.SetProgress(c.Request().Context(), c.Param("id"), req.Progress)
	if err != nil {
		return httpError(err)
	}

	resp := map[string]interface{}{}
	if advisory != nil {
		resp["advisory"] = advisory.Message
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteTask(c echo.Context) error {
	err := s.repo.Delete(c.Request().Context(), s.session(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAddComment(c echo.Context) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	comment, err := s.repo.AddComment(c.Request().Context(), s.session(c), c.Param("id"), req.Text)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, comment)
}

func (s *Server) handleListProjects(c echo.Context) error {
	return c.JSON(http.StatusOK, s.catalog.All())
}

func (s *Server) handleAddProject(c echo.Context) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project name required")
	}

	s.catalog.Add(req.Name)
	return c.JSON(http.StatusOK, s.catalog.All())
}

func (s *Server) handleListNotifications(c echo.Context) error {
	b, err := s.inbox(c)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": b.Notifications(),
		"unread":        b.UnreadCount(),
	})
}

func (s *Server) handleMarkRead(c echo.Context) error {
	b, err := s.inbox(c)
	if err != nil {
		return httpError(err)
	}
	if err := b.MarkRead(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteNotifications(c echo.Context) error {
	b, err := s.inbox(c)
	if err != nil {
		return httpError(err)
	}
	if err := b.DeleteAll(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleExportCSV renders the current in-memory snapshot, not a store
// query, as a spreadsheet-compatible CSV.
func (s *Server) handleExportCSV(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="demandas.csv"`)
	c.Response().WriteHeader(http.StatusOK)
	return export.WriteCSV(c.Response(), s.repo.Tasks(), s.directory)
}

func (s *Server) handleClassify(c echo.Context) error {
	if s.classifier == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "classifier not configured")
	}

	var req struct {
		Input string `json:"input"`
	}
	if err := c.Bind(&req); err != nil || req.Input == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "input required")
	}

	result, err := s.classifier.Analyze(c.Request().Context(), req.Input)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
