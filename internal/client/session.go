package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState is what survives between storefront runs on one device.
type SessionState struct {
	BranchID uuid.UUID `json:"branch_id"`
	DeviceID string    `json:"device_id"`
}

type SessionStore interface {
	Load() (SessionState, error)
	Save(SessionState) error
	Clear() error
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	state SessionState
}

func (m *MemoryStore) Load() (SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *MemoryStore) Save(s SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = SessionState{}
	return nil
}

// FileStore keeps the session as a JSON file readable only by its owner.
type FileStore struct {
	Path string
}

// Load returns an empty state when the file does not exist yet.
func (f FileStore) Load() (SessionState, error) {
	var s SessionState
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read session: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return SessionState{}, fmt.Errorf("parse session %s: %w", f.Path, err)
	}
	return s, nil
}

func (f FileStore) Save(s SessionState) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return os.Rename(tmp, f.Path)
}

func (f FileStore) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Session is the device's session state backed by a store. Safe for concurrent use.
type Session struct {
	mu    sync.Mutex
	store SessionStore
	state SessionState
}

// NewSession loads the persisted state from store.
func NewSession(store SessionStore) (*Session, error) {
	st, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Session{store: store, state: st}, nil
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BranchID returns uuid.Nil when no branch is bound.
func (s *Session) BranchID() uuid.UUID {
	return s.State().BranchID
}

func (s *Session) DeviceID() string {
	return s.State().DeviceID
}

// SetBranch binds the session to id, replacing any earlier choice.
func (s *Session) SetBranch(id uuid.UUID) error {
	return s.update(func(st *SessionState) { st.BranchID = id })
}

// ClearBranch unbinds the branch and keeps the device id.
func (s *Session) ClearBranch() error {
	return s.update(func(st *SessionState) { st.BranchID = uuid.Nil })
}

// Clear forgets everything, device id included.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Clear(); err != nil {
		return err
	}
	s.state = SessionState{}
	return nil
}

func (s *Session) update(fn func(*SessionState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	fn(&next)
	if err := s.store.Save(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

const (
	deviceIDPrefix    = "device_"
	deviceIDSuffixLen = 7
	base36Alphabet    = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// EnsureDeviceID returns the session device id, generating and persisting
// device_<unixmillis>_<7 base36 chars> the first time.
func EnsureDeviceID(s *Session, now func() time.Time, rnd io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.DeviceID != "" {
		return s.state.DeviceID, nil
	}

	buf := make([]byte, deviceIDSuffixLen)
	if _, err := io.ReadFull(rnd, buf); err != nil {
		return "", fmt.Errorf("generate device id: %w", err)
	}
	for i, b := range buf {
		buf[i] = base36Alphabet[int(b)%len(base36Alphabet)]
	}
	id := deviceIDPrefix + strconv.FormatInt(now().UnixMilli(), 10) + "_" + string(buf)

	next := s.state
	next.DeviceID = id
	if err := s.store.Save(next); err != nil {
		return "", err
	}
	s.state = next
	return id, nil
}
