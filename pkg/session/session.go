// Package session serializes an authenticated identity into a cookie-backed
// session and reconstitutes it on later requests. Only the user ID is
// stored; the full record is re-fetched every time so a deleted or changed
// account is never served from stale session data.
package session

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"microblog/pkg/model"
	"microblog/pkg/repo"
)

const (
	sessionName = "microblog_session"
	keyUserID   = "user_id"
)

// ErrNoSession means the request carries no usable identity: no cookie, a
// tampered cookie, or a user ID that no longer resolves.
var ErrNoSession = errors.New("no session")

type Manager struct {
	store sessions.Store
	users repo.UserRepository
}

func NewManager(secret string, users repo.UserRepository) *Manager {
	return &Manager{
		store: sessions.NewCookieStore([]byte(secret)),
		users: users,
	}
}

// SignIn stores the user's ID in the session.
func (m *Manager) SignIn(w http.ResponseWriter, r *http.Request, user *model.User) error {
	s, _ := m.store.Get(r, sessionName)
	s.Values[keyUserID] = user.ID
	return errors.Wrap(s.Save(r, w), "failed to save session")
}

// SignOut drops the session cookie.
func (m *Manager) SignOut(w http.ResponseWriter, r *http.Request) error {
	s, _ := m.store.Get(r, sessionName)
	delete(s.Values, keyUserID)
	s.Options.MaxAge = -1
	return errors.Wrap(s.Save(r, w), "failed to clear session")
}

// CurrentUser resolves the session back to a full user record. A session
// pointing at a user that no longer exists is treated as no session, not as
// an error.
func (m *Manager) CurrentUser(r *http.Request) (*model.User, error) {
	s, err := m.store.Get(r, sessionName)
	if err != nil {
		return nil, ErrNoSession
	}
	id, ok := s.Values[keyUserID].(uint)
	if !ok {
		return nil, ErrNoSession
	}

	user, err := m.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSession
		}
		return nil, errors.Wrap(err, "failed to load session user")
	}
	return user, nil
}

// Flash queues a one-shot message, read and cleared by PopFlash on the next
// request.
func (m *Manager) Flash(w http.ResponseWriter, r *http.Request, msg string) {
	s, _ := m.store.Get(r, sessionName)
	s.AddFlash(msg)
	_ = s.Save(r, w)
}

func (m *Manager) PopFlash(w http.ResponseWriter, r *http.Request) string {
	s, err := m.store.Get(r, sessionName)
	if err != nil {
		// Undecodable cookie; drop it so the next request starts clean.
		s.Options.MaxAge = -1
		_ = s.Save(r, w)
		return ""
	}
	flashes := s.Flashes()
	if len(flashes) == 0 {
		return ""
	}
	_ = s.Save(r, w)
	msg, _ := flashes[0].(string)
	return msg
}
