// Package httpapi exposes the demand board to view layers over HTTP,
// including a server-sent-events change stream.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/psepar/demandboard/internal/ai"
	"github.com/psepar/demandboard/internal/auth"
	"github.com/psepar/demandboard/internal/model"
	"github.com/psepar/demandboard/internal/repo"
	"github.com/psepar/demandboard/internal/store"
)

// sessionContextKey is the echo context key holding the caller's session.
const sessionContextKey = "session"

// refreshTokenHeader carries the opaque refresh token that scopes a
// persisted session to the client it was issued to.
const refreshTokenHeader = "X-Refresh-Token"

// Server wires the repository, auth, and classifier into HTTP handlers.
type Server struct {
	repo       *repo.Repository
	auth       *auth.Service
	tokens     *auth.TokenIssuer
	sessions   *auth.SessionStore
	store      store.Store
	directory  *model.Directory
	catalog    *repo.ProjectCatalog
	classifier *ai.Classifier
	log        *log.Entry

	// base context for per-recipient inbox feed goroutines.
	ctx context.Context

	mu           sync.Mutex
	inboxes      map[string]*repo.Inbox
	inboxCancels map[string]context.CancelFunc
}

// New creates a Server. classifier may be nil when no API key is
// configured; sessions may be nil to disable session resumption.
func New(
	ctx context.Context,
	r *repo.Repository,
	a *auth.Service,
	tokens *auth.TokenIssuer,
	sessions *auth.SessionStore,
	s store.Store,
	directory *model.Directory,
	catalog *repo.ProjectCatalog,
	classifier *ai.Classifier,
) *Server {
	return &Server{
		repo:         r,
		auth:         a,
		tokens:       tokens,
		sessions:     sessions,
		store:        s,
		directory:    directory,
		catalog:      catalog,
		classifier:   classifier,
		ctx:          ctx,
		inboxes:      make(map[string]*repo.Inbox),
		inboxCancels: make(map[string]context.CancelFunc),
		log:          log.WithField("component", "httpapi"),
	}
}

// Register wires all routes on the given Echo instance.
func (s *Server) Register(e *echo.Echo) {
	api := e.Group("/api")

	api.POST("/lookup", s.handleLookup)
	api.POST("/login", s.handleLogin)
	api.POST("/register", s.handleRegister)
	api.GET("/session", s.handleResumeSession)

	authed := api.Group("", s.requireSession)
	authed.POST("/logout", s.handleLogout)

	authed.GET("/tasks", s.handleListTasks)
	authed.POST("/tasks", s.handleCreateTask)
	authed.PATCH("/tasks/:id/status", s.handleSetStatus)
	authed.PATCH("/tasks/:id/priority", s.handleSetPriority)
	authed.PATCH("/tasks/:id/progress", s.handleSetProgress)
	authed.DELETE("/tasks/:id", s.handleDeleteTask)
	authed.POST("/tasks/:id/comments", s.handleAddComment)

	authed.GET("/projects", s.handleListProjects)
	authed.POST("/projects", s.handleAddProject)

	authed.GET("/notifications", s.handleListNotifications)
	authed.POST("/notifications/:id/read", s.handleMarkRead)
	authed.DELETE("/notifications", s.handleDeleteNotifications)

	authed.GET("/export.csv", s.handleExportCSV)
	authed.POST("/classify", s.handleClassify)
	authed.GET("/stream", s.handleStream)
}

// requireSession authenticates the Bearer token (or, for SSE clients
// that cannot set headers, a token query parameter) and stores the
// session in the request context.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			if t := c.QueryParam("token"); t != "" {
				header = "Bearer " + t
			}
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}

		session, err := s.tokens.Parse(parts[1])
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		c.Set(sessionContextKey, session)
		return next(c)
	}
}

// session returns the authenticated session from the request context.
func (s *Server) session(c echo.Context) model.Session {
	sess, _ := c.Get(sessionContextKey).(model.Session)
	return sess
}

// inbox returns the caller's notification inbox, creating it and
// starting its feed goroutine on first use. The inbox is only cached
// once its initial Load succeeds, so a transient store failure does not
// pin an empty inbox for the rest of the session.
func (s *Server) inbox(c echo.Context) (*repo.Inbox, error) {
	email := s.session(c).Email

	s.mu.Lock()
	if b, ok := s.inboxes[email]; ok {
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()

	b := repo.NewInbox(s.store, email)
	if err := b.Load(c.Request().Context()); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.inboxes[email]; ok {
		// A concurrent request won the race; use its inbox.
		s.mu.Unlock()
		return existing, nil
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	s.inboxes[email] = b
	s.inboxCancels[email] = cancel
	s.mu.Unlock()

	go b.Run(runCtx)
	return b, nil
}

// dropInbox releases a recipient's inbox on logout, stopping its feed
// goroutine and its change-feed subscription.
func (s *Server) dropInbox(email string) {
	s.mu.Lock()
	if cancel, ok := s.inboxCancels[email]; ok {
		cancel()
		delete(s.inboxCancels, email)
	}
	delete(s.inboxes, email)
	s.mu.Unlock()
}
