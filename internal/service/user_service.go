package service

import (
	"context"
	"strings"

	"tegridy/internal/models"
	"tegridy/internal/repository"
	"tegridy/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	userRepo repository.UserRepository
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, models.NewInvalidInputError(err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, models.NewInvalidInputError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewInvalidInputError(err.Error())
	}

	existing, err := s.userRepo.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewInvalidInputError("An account with this email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username: in.Username,
		Email:    strings.ToLower(in.Email),
		Password: string(hash),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies credentials. Wrong email and wrong password produce
// the same error so the endpoint does not leak which accounts exist.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthenticatedError("Invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewUnauthenticatedError("Invalid email or password")
	}
	return user, nil
}

// EnsureUser materializes the session identity as a user row. Called from
// the auth middleware so every authenticated handler can rely on the
// author row existing before any comment or vote is written.
func (s *UserService) EnsureUser(ctx context.Context, user *models.User) error {
	return s.userRepo.Ensure(ctx, user)
}
