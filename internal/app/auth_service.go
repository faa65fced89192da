package app

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"swissknife-chat/internal/model"
	"swissknife-chat/internal/pkg/jwtutil"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
)

const minPasswordLength = 8

// userStore is the slice of the user repository the auth flows need.
type userStore interface {
	Create(user *model.User) error
	GetByUsername(username string) (*model.User, error)
	GetByEmail(email string) (*model.User, error)
	GetByID(id uint) (*model.User, error)
}

// AuthService owns the account lifecycle. Passwords are stored as bcrypt
// hashes; a login session is a stateless JWT carrying the user id and name.
type AuthService struct {
	users         userStore
	jwtSecret     string
	jwtExpiration time.Duration
}

func NewAuthService(users userStore, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		users:         users,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token string
	User  *model.User
}

func (s *AuthService) Register(input RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	password := strings.TrimSpace(input.Password)

	if username == "" || len(password) < minPasswordLength {
		return nil, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidInput
	}

	if taken, err := s.usernameTaken(username); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameExists
	}
	if taken, err := s.emailTaken(email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}

	return s.issueSession(user)
}

func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	password := strings.TrimSpace(input.Password)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.users.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	// Unknown user and wrong password answer identically.
	if user == nil {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	return s.issueSession(user)
}

func (s *AuthService) GetUserByID(id uint) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	return s.users.GetByID(id)
}

func (s *AuthService) issueSession(user *model.User) (*AuthResult, error) {
	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) usernameTaken(username string) (bool, error) {
	existing, err := s.users.GetByUsername(username)
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}

func (s *AuthService) emailTaken(email string) (bool, error) {
	existing, err := s.users.GetByEmail(email)
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}
