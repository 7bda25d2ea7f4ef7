package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRegistration = errors.New("invalid registration")
)

type Service struct {
	repo      *Repository
	jwtSecret string
	validate  *validator.Validate
}

type MyJWTClaims struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, secret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
		validate:  validator.New(),
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	if err := s.validate.Struct(req); err != nil {
		// The validator detail stays server-side; callers match on the
		// sentinel.
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		Username: req.Username,
		Fullname: req.Fullname,
		Password: string(hashedPwd),
	}

	return s.repo.CreateUser(ctx, u)
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, ErrInvalidCredentials
	}

	u, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.generateToken(u)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: token,
		ID:          u.ID,
		Username:    u.Username,
		Fullname:    u.Fullname,
	}, nil
}

func (s *Service) generateToken(u *User) (string, error) {
	claims := MyJWTClaims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// ValidateToken returns the user id and username carried by a valid token.
func (s *Service) ValidateToken(tokenString string) (int, string, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, "", errors.New("invalid token")
	}
	return claims.ID, claims.Username, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.repo.SearchUsers(ctx, query)
}

func (s *Service) AddFriend(ctx context.Context, username, friend string) error {
	return s.repo.AddFriend(ctx, username, friend)
}

func (s *Service) RemoveFriend(ctx context.Context, username, friend string) error {
	return s.repo.RemoveFriend(ctx, username, friend)
}

// FriendDetails lists the user's friends with display names, in friend-list
// order, optionally filtered by a fullname search.
func (s *Service) FriendDetails(ctx context.Context, username, search string) ([]RosterEntry, error) {
	entries, err := s.repo.FriendDetails(ctx, username)
	if err != nil {
		return nil, err
	}
	if search != "" {
		entries = lo.Filter(entries, func(e RosterEntry, _ int) bool {
			return strings.Contains(e.Fullname, search)
		})
	}
	return entries, nil
}

// AddableUsers returns the whole roster minus the caller, sorted so current
// friends lead in friend-list order and everyone still addable follows.
func (s *Service) AddableUsers(ctx context.Context, username, search string) ([]RosterEntry, error) {
	roster, err := s.repo.Roster(ctx, username)
	if err != nil {
		return nil, err
	}
	friends, err := s.repo.Friends(ctx, username)
	if err != nil {
		return nil, err
	}

	sorted := SortRoster(friends, roster)
	if search != "" {
		sorted = lo.Filter(sorted, func(e RosterEntry, _ int) bool {
			return strings.Contains(e.Username, search)
		})
	}
	return sorted, nil
}

// Fullnames implements the directory lookup the chat feature uses for its
// presence listing.
func (s *Service) Fullnames(ctx context.Context, usernames []string) (map[string]string, error) {
	return s.repo.Fullnames(ctx, usernames)
}
