package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"charging-service/internal/auth"
	"charging-service/internal/models"
	"charging-service/internal/util"

	"go.uber.org/zap"
)

// TokenIssuer issues bearer tokens for authenticated users
type TokenIssuer interface {
	GenerateToken(userID, username string) (string, error)
}

// AccountService handles registration, login and profile management
type AccountService struct {
	accounts AccountStore
	hasher   auth.Hasher
	tokens   TokenIssuer
	logger   *zap.Logger
}

// NewAccountService creates a new account service
func NewAccountService(accounts AccountStore, hasher auth.Hasher, tokens TokenIssuer) *AccountService {
	return &AccountService{
		accounts: accounts,
		hasher:   hasher,
		tokens:   tokens,
		logger:   util.Named("accounts"),
	}
}

// RegisterRequest represents a request to create an account
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Phone    string `json:"phone"`
}

// LoginRequest represents a login attempt
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued bearer token
type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// UpdateProfileRequest is a partial profile update. Nil fields are left
// unchanged.
type UpdateProfileRequest struct {
	Email                  *string `json:"email" binding:"omitempty,email"`
	Phone                  *string `json:"phone"`
	PreferredChargingSpeed *string `json:"preferred_charging_speed" binding:"omitempty,oneof=fast standard"`
	NotificationEmail      *bool   `json:"notification_email"`
}

// VehicleRequest represents a vehicle to add to a profile
type VehicleRequest struct {
	Make  string `json:"make" binding:"required"`
	Model string `json:"model" binding:"required"`
	Year  string `json:"year"`
}

// Register creates an account with a hashed password
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Register")
	defer span.End()

	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" || email == "" || req.Password == "" {
		return nil, models.NewValidationError("username, email and password are required")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Phone:        strings.TrimSpace(req.Phone),
		Profile: models.Profile{
			PreferredChargingSpeed: models.ChargingSpeedFast,
			NotificationEmail:      true,
		},
		Vehicles: []models.Vehicle{},
	}
	if err := s.accounts.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username))
	return user, nil
}

// Login verifies credentials and issues a bearer token. Unknown users and
// wrong passwords fail the same way.
func (s *AccountService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Login")
	defer span.End()

	user, err := s.accounts.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		s.logger.Info("Login rejected", zap.String("username", user.Username))
		return nil, models.ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	return &LoginResponse{Token: token, UserID: user.ID}, nil
}

func (s *AccountService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	return s.accounts.Get(ctx, userID)
}

// UpdateProfile applies the non-nil fields of req
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, req *UpdateProfileRequest) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.UpdateProfile")
	defer span.End()

	return s.accounts.Update(ctx, userID, func(u *models.User) error {
		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			if email == "" {
				return models.NewValidationError("email must not be empty")
			}
			u.Email = email
		}
		if req.Phone != nil {
			u.Phone = strings.TrimSpace(*req.Phone)
		}
		if req.PreferredChargingSpeed != nil {
			speed := *req.PreferredChargingSpeed
			if speed != models.ChargingSpeedFast && speed != models.ChargingSpeedStandard {
				return models.NewValidationError("preferred_charging_speed must be fast or standard")
			}
			u.Profile.PreferredChargingSpeed = speed
		}
		if req.NotificationEmail != nil {
			u.Profile.NotificationEmail = *req.NotificationEmail
		}
		return nil
	})
}

func (s *AccountService) ListVehicles(ctx context.Context, userID string) ([]models.Vehicle, error) {
	user, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Vehicles == nil {
		return []models.Vehicle{}, nil
	}
	return user.Vehicles, nil
}

// AddVehicle appends a vehicle and returns the updated list
func (s *AccountService) AddVehicle(ctx context.Context, userID string, req *VehicleRequest) ([]models.Vehicle, error) {
	vehicle := models.Vehicle{
		Make:  strings.TrimSpace(req.Make),
		Model: strings.TrimSpace(req.Model),
		Year:  strings.TrimSpace(req.Year),
	}
	if vehicle.Make == "" || vehicle.Model == "" {
		return nil, models.NewValidationError("vehicle make and model are required")
	}

	user, err := s.accounts.Update(ctx, userID, func(u *models.User) error {
		u.Vehicles = append(u.Vehicles, vehicle)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user.Vehicles, nil
}

// DeleteVehicle removes the vehicle at index and returns the updated list
func (s *AccountService) DeleteVehicle(ctx context.Context, userID string, index int) ([]models.Vehicle, error) {
	user, err := s.accounts.Update(ctx, userID, func(u *models.User) error {
		if index < 0 || index >= len(u.Vehicles) {
			return models.ErrVehicleNotFound
		}
		u.Vehicles = append(u.Vehicles[:index], u.Vehicles[index+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if user.Vehicles == nil {
		return []models.Vehicle{}, nil
	}
	return user.Vehicles, nil
}
