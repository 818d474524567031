package auth

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/fsutil"
)

// User is one entry of the users file.
type User struct {
	Username     string `yaml:"username" json:"username"`
	PasswordHash string `yaml:"password_hash" json:"-"`
	Role         Role   `yaml:"role" json:"role"`
}

type usersFile struct {
	Users []User `yaml:"users"`
}

// FileStore keeps users in a YAML file with bcrypt password hashes. The
// file is re-read when its size or modification time changes, so edits
// made by the CLI reach a running server without a restart.
type FileStore struct {
	path string
	// Cost is the bcrypt cost for new hashes.
	Cost int

	mu      sync.RWMutex
	users   map[string]User
	modTime time.Time
	size    int64
}

// dummyHash is compared against for unknown users so that both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("wheelhouse"), bcrypt.MinCost)

// NewFileStore opens the users file at path. A missing file is an empty store.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errutils.Wrap(errutils.ErrInvalidPath, "users file path cannot be empty")
	}
	s := &FileStore{path: path, Cost: bcrypt.DefaultCost, users: map[string]User{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the users file.
func (s *FileStore) Path() string {
	return s.path
}

// Authenticate implements Authenticator.
func (s *FileStore) Authenticate(_ context.Context, username, password string) (Role, error) {
	if err := s.refresh(); err != nil {
		logger.Warn("Failed to reload users file", logger.Fields{"path": s.path, "error": err.Error()})
	}

	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()

	hash := dummyHash
	if ok {
		hash = []byte(u.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !ok {
		return "", errutils.ErrInvalidCredentials
	}
	return u.Role, nil
}

// Add registers a new user.
func (s *FileStore) Add(username, password string, role Role) error {
	if username == "" || password == "" {
		return errutils.Wrap(errutils.ErrValidation, "username and password are required")
	}
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.Cost)
	if err != nil {
		return errutils.Wrap(err, "failed to hash password")
	}
	return s.update(func(users map[string]User) error {
		if _, exists := users[username]; exists {
			return fmt.Errorf("%w: %s", errutils.ErrUserExists, username)
		}
		users[username] = User{Username: username, PasswordHash: string(hash), Role: role}
		return nil
	})
}

// SetPassword replaces the password of an existing user.
func (s *FileStore) SetPassword(username, password string) error {
	if password == "" {
		return errutils.Wrap(errutils.ErrValidation, "password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.Cost)
	if err != nil {
		return errutils.Wrap(err, "failed to hash password")
	}
	return s.update(func(users map[string]User) error {
		u, ok := users[username]
		if !ok {
			return errutils.ErrUserNotFoundWithName(username)
		}
		u.PasswordHash = string(hash)
		users[username] = u
		return nil
	})
}

// SetRole changes the role of an existing user.
func (s *FileStore) SetRole(username string, role Role) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}
	return s.update(func(users map[string]User) error {
		u, ok := users[username]
		if !ok {
			return errutils.ErrUserNotFoundWithName(username)
		}
		u.Role = role
		users[username] = u
		return nil
	})
}

// Remove deletes a user.
func (s *FileStore) Remove(username string) error {
	return s.update(func(users map[string]User) error {
		if _, ok := users[username]; !ok {
			return errutils.ErrUserNotFoundWithName(username)
		}
		delete(users, username)
		return nil
	})
}

// List returns all users sorted by name, without password hashes.
func (s *FileStore) List() ([]User, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, User{Username: u.Username, Role: u.Role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// update applies fn to a fresh copy of the users and saves the result.
func (s *FileStore) update(fn func(map[string]User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}
	users := make(map[string]User, len(s.users))
	for k, v := range s.users {
		users[k] = v
	}
	if err := fn(users); err != nil {
		return err
	}
	if err := s.saveLocked(users); err != nil {
		return err
	}
	s.users = users
	return nil
}

func (s *FileStore) refresh() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	s.mu.RLock()
	unchanged := info.ModTime().Equal(s.modTime) && info.Size() == s.size
	s.mu.RUnlock()
	if unchanged {
		return nil
	}
	return s.load()
}

func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileStore) loadLocked() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.users = map[string]User{}
			s.modTime, s.size = time.Time{}, 0
			return nil
		}
		return errutils.Wrapf(err, "failed to stat users file %s", s.path)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return errutils.Wrapf(err, "failed to read users file %s", s.path)
	}
	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return errutils.Wrapf(err, "failed to parse users file %s", s.path)
	}
	users := make(map[string]User, len(f.Users))
	for _, u := range f.Users {
		users[u.Username] = u
	}
	s.users = users
	s.modTime, s.size = info.ModTime(), info.Size()
	return nil
}

func (s *FileStore) saveLocked(users map[string]User) error {
	f := usersFile{Users: make([]User, 0, len(users))}
	for _, u := range users {
		f.Users = append(f.Users, u)
	}
	sort.Slice(f.Users, func(i, j int) bool { return f.Users[i].Username < f.Users[j].Username })

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return errutils.Wrap(err, "failed to encode users")
	}
	if err := enc.Close(); err != nil {
		return errutils.Wrap(err, "failed to encode users")
	}
	if err := fsutil.EnsureFileDir(s.path); err != nil {
		return errutils.Wrapf(err, "failed to create directory for %s", s.path)
	}
	if err := fsutil.AtomicWriteFile(s.path, buf.Bytes(), fsutil.FileModeSecure); err != nil {
		return errutils.Wrapf(err, "failed to write users file %s", s.path)
	}
	if info, err := os.Stat(s.path); err == nil {
		s.modTime, s.size = info.ModTime(), info.Size()
	}
	return nil
}
