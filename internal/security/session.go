package security

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/hkdf"

	"taskboard/internal/models"
)

const (
	sessionName = "taskboard_session"
	flashName   = "taskboard_flash"

	keyUserID   = "user_id"
	keyUsername = "username"
	keyEmail    = "email"
	keyIssued   = "issued_at"
	keySeen     = "seen_at"
)

type SessionOptions struct {
	// Secret is stretched into the cookie signing and encryption keys.
	// Empty means a random per-process secret.
	Secret      string
	IdleTimeout time.Duration
	MaxLifetime time.Duration
	Secure      bool
}

// SessionStore issues and reads the encrypted cookie session that carries
// the logged-in user.
type SessionStore struct {
	store *sessions.CookieStore
	opts  SessionOptions
	now   func() time.Time
}

func NewSessionStore(opts SessionOptions) (*SessionStore, error) {
	secret := []byte(opts.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
	}
	hashKey, blockKey, err := deriveKeys(secret)
	if err != nil {
		return nil, err
	}

	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.MaxLifetime / time.Second),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(store.Options.MaxAge)

	return &SessionStore{store: store, opts: opts, now: time.Now}, nil
}

func deriveKeys(secret []byte) (hashKey, blockKey []byte, err error) {
	r := hkdf.New(sha256.New, secret, nil, []byte("taskboard session keys"))
	hashKey = make([]byte, 64)
	blockKey = make([]byte, 32)
	if _, err := io.ReadFull(r, hashKey); err != nil {
		return nil, nil, fmt.Errorf("derive session keys: %w", err)
	}
	if _, err := io.ReadFull(r, blockKey); err != nil {
		return nil, nil, fmt.Errorf("derive session keys: %w", err)
	}
	return hashKey, blockKey, nil
}

// CreateSession stores user in a fresh session cookie.
func (s *SessionStore) CreateSession(w http.ResponseWriter, r *http.Request, user models.SessionUser) error {
	session, _ := s.store.Get(r, sessionName)
	// Never reuse values from a cookie that existed before login.
	session.Values = map[interface{}]interface{}{}
	now := s.now().Unix()
	session.Values[keyUserID] = user.ID
	session.Values[keyUsername] = user.Username
	session.Values[keyEmail] = user.Email
	session.Values[keyIssued] = now
	session.Values[keySeen] = now
	session.Options.MaxAge = s.store.Options.MaxAge
	return session.Save(r, w)
}

// GetSession returns the session user when the cookie is valid and neither
// the absolute nor the inactivity window has passed. A valid session has its
// activity stamp refreshed.
func (s *SessionStore) GetSession(w http.ResponseWriter, r *http.Request) (*models.SessionUser, error) {
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		// Undecodable cookie, typically after a secret rotation.
		return nil, nil
	}
	if session.IsNew {
		return nil, nil
	}

	user, issued, seen, ok := readValues(session)
	if !ok {
		return nil, nil
	}
	now := s.now()
	if now.Sub(time.Unix(issued, 0)) > s.opts.MaxLifetime || now.Sub(time.Unix(seen, 0)) > s.opts.IdleTimeout {
		return nil, s.destroy(w, r, session)
	}

	session.Values[keySeen] = now.Unix()
	if err := session.Save(r, w); err != nil {
		return nil, err
	}
	return user, nil
}

func readValues(session *sessions.Session) (*models.SessionUser, int64, int64, bool) {
	id, ok1 := session.Values[keyUserID].(string)
	username, ok2 := session.Values[keyUsername].(string)
	email, ok3 := session.Values[keyEmail].(string)
	issued, ok4 := session.Values[keyIssued].(int64)
	seen, ok5 := session.Values[keySeen].(int64)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || id == "" {
		return nil, 0, 0, false
	}
	return &models.SessionUser{ID: id, Username: username, Email: email}, issued, seen, true
}

// DestroySession expires the session cookie. Safe to call without a session.
func (s *SessionStore) DestroySession(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, sessionName)
	return s.destroy(w, r, session)
}

func (s *SessionStore) destroy(w http.ResponseWriter, r *http.Request, session *sessions.Session) error {
	session.Values = map[interface{}]interface{}{}
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
)

type Flash struct {
	Kind    FlashKind
	Message string
}

// AddFlash queues a one-shot message for the next rendered page. A later
// message of the same kind replaces an earlier one.
func (s *SessionStore) AddFlash(w http.ResponseWriter, r *http.Request, kind FlashKind, msg string) error {
	session, _ := s.store.Get(r, flashName)
	session.Options.MaxAge = 0
	session.Values[string(kind)] = msg
	return session.Save(r, w)
}

// Flashes pops every queued message.
func (s *SessionStore) Flashes(w http.ResponseWriter, r *http.Request) ([]Flash, error) {
	session, err := s.store.Get(r, flashName)
	if err != nil || session.IsNew {
		return nil, nil
	}
	var out []Flash
	for _, kind := range []FlashKind{FlashSuccess, FlashError} {
		if msg, ok := session.Values[string(kind)].(string); ok && msg != "" {
			out = append(out, Flash{Kind: kind, Message: msg})
		}
	}
	session.Values = map[interface{}]interface{}{}
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		return out, fmt.Errorf("clear flashes: %w", err)
	}
	return out, nil
}
