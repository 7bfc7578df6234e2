package users

import (
	"errors"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmptyCredentials = errors.New("users: empty name or password")
	ErrUserExists       = errors.New("users: name is already taken")
)

// Verifier decides the outcome of the login and register pages. When isLogin is false,
// a successful verification registers the user.
type Verifier interface {
	Verify(name, password string, isLogin bool) bool
}

// Store is an in-memory Verifier keeping bcrypt hashes of the passwords. It is safe for
// concurrent use by multiple workers.
type Store struct {
	cost  int
	users *xsync.MapOf[string, []byte]
}

func NewStore(hashCost int) *Store {
	return &Store{
		cost:  hashCost,
		users: xsync.NewMapOf[string, []byte](),
	}
}

func (s *Store) Verify(name, password string, isLogin bool) bool {
	if isLogin {
		return s.Login(name, password) == nil
	}

	return s.Register(name, password) == nil
}

// Register adds a new user, failing if the name is already in use.
func (s *Store) Register(name, password string) error {
	if len(name) == 0 || len(password) == 0 {
		return ErrEmptyCredentials
	}

	if _, found := s.users.Load(name); found {
		return ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}

	// somebody might have taken the name while the password was being hashed
	if _, loaded := s.users.LoadOrStore(name, hash); loaded {
		return ErrUserExists
	}

	return nil
}

// Login checks whether the user exists and the password matches.
func (s *Store) Login(name, password string) error {
	if len(name) == 0 || len(password) == 0 {
		return ErrEmptyCredentials
	}

	hash, found := s.users.Load(name)
	if !found {
		return bcrypt.ErrMismatchedHashAndPassword
	}

	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}

// Len returns the number of registered users.
func (s *Store) Len() int {
	return s.users.Size()
}
