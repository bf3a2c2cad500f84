package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/labstack/echo/v4"

	"github.com/psepar/demandboard/internal/auth"
	"github.com/psepar/demandboard/internal/model"
	"github.com/psepar/demandboard/internal/repo"
	"github.com/psepar/demandboard/internal/store"
)

// stubStore implements store.Store with switchable notification
// failures and observable feed subscriptions.
type stubStore struct {
	mu           sync.Mutex
	notes        []model.Notification
	notifErr     error
	unsubOnce    sync.Once
	unsubscribed chan struct{}
}

func newStubStore() *stubStore {
	return &stubStore{unsubscribed: make(chan struct{})}
}

func (f *stubStore) Tasks(ctx context.Context) ([]model.Task, error) { return nil, nil }

func (f *stubStore) InsertTask(ctx context.Context, t model.Task) (*model.Task, error) {
	return &t, nil
}

func (f *stubStore) UpdateTask(ctx context.Context, id string, patch store.TaskPatch) error {
	return nil
}

func (f *stubStore) DeleteTask(ctx context.Context, id string) error { return nil }

func (f *stubStore) InsertComment(ctx context.Context, taskID string, c model.Comment) (*model.Comment, error) {
	return &c, nil
}

func (f *stubStore) Notifications(ctx context.Context, email string, limit int) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifErr != nil {
		return nil, f.notifErr
	}
	var out []model.Notification
	for _, n := range f.notes {
		if n.UserEmail == email {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *stubStore) InsertNotification(ctx context.Context, n model.Notification) error {
	f.mu.Lock()
	f.notes = append(f.notes, n)
	f.mu.Unlock()
	return nil
}

func (f *stubStore) MarkNotificationRead(ctx context.Context, id string) error { return nil }

func (f *stubStore) DeleteNotifications(ctx context.Context, email string) error { return nil }

func (f *stubStore) ProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return nil, store.ErrNotFound
}

func (f *stubStore) InsertProfile(ctx context.Context, p model.Profile) error { return nil }

func (f *stubStore) Subscribe(buffer int) (<-chan store.Event, func()) {
	ch := make(chan store.Event, buffer)
	return ch, func() {
		f.unsubOnce.Do(func() { close(f.unsubscribed) })
	}
}

type noopFanout struct{}

func (noopFanout) TaskCreated(ctx context.Context, t model.Task, actor model.Session) {}

func (noopFanout) CommentAdded(ctx context.Context, t model.Task, c model.Comment, a model.Session) {
}

func apiDirectory() *model.Directory {
	return model.NewDirectory([]model.User{
		{Name: "Rodrigo", Email: "boss@example.org", Role: model.RoleBoss},
		{Name: "Narley", Email: "narley@example.org", Role: model.RoleEmployee},
	})
}

func newTestServer(t *testing.T, st store.Store) (*echo.Echo, *Server) {
	t.Helper()

	directory := apiDirectory()
	r := repo.New(st, noopFanout{}, repo.NewProjectCatalog(nil), false)
	tokens := auth.NewTokenIssuer("segredo-de-teste", time.Hour)
	sessions := auth.NewSessionStore(keyring.NewArrayKeyring(nil))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New(ctx, r, auth.NewService(st, directory), tokens, sessions, st, directory, repo.NewProjectCatalog(nil), nil)
	e := echo.New()
	s.Register(e)
	return e, s
}

func bearerFor(t *testing.T, s *Server, sess model.Session) string {
	t.Helper()
	token, err := s.tokens.Issue(sess)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return "Bearer " + token
}

func doRequest(e *echo.Echo, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestResumeRejectsCallerWithoutRefreshToken(t *testing.T) {
	e, s := newTestServer(t, newStubStore())

	boss := model.Session{Name: "Rodrigo", Email: "boss@example.org", Role: model.RoleBoss}
	if err := s.sessions.Save("segredo-do-chefe", boss); err != nil {
		t.Fatalf("saving session: %v", err)
	}

	rec := doRequest(e, http.MethodGet, "/api/session", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without refresh token, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "boss@example.org") {
		t.Fatal("response must not leak another client's session")
	}
}

func TestResumeRejectsUnknownRefreshToken(t *testing.T) {
	e, s := newTestServer(t, newStubStore())

	boss := model.Session{Name: "Rodrigo", Email: "boss@example.org", Role: model.RoleBoss}
	if err := s.sessions.Save("segredo-do-chefe", boss); err != nil {
		t.Fatalf("saving session: %v", err)
	}

	rec := doRequest(e, http.MethodGet, "/api/session", map[string]string{
		refreshTokenHeader: "chute",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown refresh token, got %d", rec.Code)
	}
}

func TestResumeReissuesOwnSessionOnly(t *testing.T) {
	e, s := newTestServer(t, newStubStore())

	narley := model.Session{Name: "Narley", Email: "narley@example.org", Role: model.RoleEmployee}
	if err := s.sessions.Save("segredo-do-narley", narley); err != nil {
		t.Fatalf("saving session: %v", err)
	}

	rec := doRequest(e, http.MethodGet, "/api/session", map[string]string{
		refreshTokenHeader: "segredo-do-narley",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Session != narley {
		t.Fatalf("expected own session resumed, got %+v", resp.Session)
	}

	got, err := s.tokens.Parse(resp.Token)
	if err != nil {
		t.Fatalf("parsing reissued token: %v", err)
	}
	if got != narley {
		t.Fatalf("token carries %+v, expected %+v", got, narley)
	}
}

func TestInboxRetriedAfterLoadFailure(t *testing.T) {
	st := newStubStore()
	e, s := newTestServer(t, st)

	narley := model.Session{Name: "Narley", Email: "narley@example.org", Role: model.RoleEmployee}
	headers := map[string]string{echo.HeaderAuthorization: bearerFor(t, s, narley)}

	st.mu.Lock()
	st.notifErr = errors.New("store down")
	st.notes = []model.Notification{{ID: "n1", UserEmail: narley.Email, Title: "t", Message: "m"}}
	st.mu.Unlock()

	rec := doRequest(e, http.MethodGet, "/api/notifications", headers)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 while store is down, got %d", rec.Code)
	}

	st.mu.Lock()
	st.notifErr = nil
	st.mu.Unlock()

	rec = doRequest(e, http.MethodGet, "/api/notifications", headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after store recovery, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "n1") {
		t.Fatalf("expected notification served after recovery, got %s", rec.Body.String())
	}
}

func TestLogoutReleasesInboxFeed(t *testing.T) {
	st := newStubStore()
	e, s := newTestServer(t, st)

	narley := model.Session{Name: "Narley", Email: "narley@example.org", Role: model.RoleEmployee}
	headers := map[string]string{echo.HeaderAuthorization: bearerFor(t, s, narley)}

	rec := doRequest(e, http.MethodGet, "/api/notifications", headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 creating inbox, got %d", rec.Code)
	}

	rec = doRequest(e, http.MethodPost, "/api/logout", headers)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on logout, got %d", rec.Code)
	}

	select {
	case <-st.unsubscribed:
	case <-time.After(time.Second):
		t.Fatal("inbox feed subscription not released on logout")
	}
}
