package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// state is everything the app persists on device: the auth token and the
// onboarding flag. The cart is deliberately absent; it is always re-fetched
// from the server as authoritative.
type state struct {
	Token     string `json:"token,omitempty"`
	GuestID   string `json:"guest_id"`
	Onboarded bool   `json:"onboarded"`
}

// Store is a small key-value file holding the session. Writes go through a
// temp file and rename, so a crash mid-write cannot corrupt the session.
type Store struct {
	path   string
	logger *logrus.Logger

	mu    sync.Mutex
	state state
}

// Open loads the session file, creating a fresh guest session when the file
// does not exist yet.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	s := &Store{path: path, logger: logger}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.state = state{GuestID: uuid.New().String()}
		if err := s.save(); err != nil {
			return nil, fmt.Errorf("initialize session: %w", err)
		}
		logger.WithField("guest_id", s.state.GuestID).Info("New guest session created")
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	if s.state.GuestID == "" {
		s.state.GuestID = uuid.New().String()
		if err := s.save(); err != nil {
			return nil, fmt.Errorf("repair session: %w", err)
		}
	}
	return s, nil
}

// Token returns the auth token, or the guest ID when unauthenticated, so the
// backend can key the guest cart before login.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Token != "" {
		return s.state.Token
	}
	return s.state.GuestID
}

func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Token != ""
}

func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Token = token
	return s.save()
}

func (s *Store) Onboarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Onboarded
}

func (s *Store) SetOnboarded(done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Onboarded = done
	return s.save()
}

// Clear drops the auth token on logout and starts a new guest session. The
// onboarding flag survives; the user has still seen the intro screens.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Token = ""
	s.state.GuestID = uuid.New().String()
	return s.save()
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
