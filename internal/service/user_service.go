package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/sheet-tracker/backend/internal/domain"
	"github.com/sheet-tracker/backend/internal/infrastructure"
)

// UserService handles account lifecycle and token issuance
type UserService struct {
	userRepo    domain.UserRepository
	jwtConfig   *infrastructure.JWTConfig
	adminEmails []string
	tracer      trace.Tracer
	logger      *zap.Logger
}

// NewUserService creates a new user service. Accounts whose email is listed in
// adminEmails are created with the admin role.
func NewUserService(
	userRepo domain.UserRepository,
	jwtConfig *infrastructure.JWTConfig,
	adminEmails []string,
	tracer trace.Tracer,
	logger *zap.Logger,
) *UserService {
	normalized := make([]string, 0, len(adminEmails))
	for _, email := range adminEmails {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(email)))
	}
	return &UserService{
		userRepo:    userRepo,
		jwtConfig:   jwtConfig,
		adminEmails: normalized,
		tracer:      tracer,
		logger:      logger,
	}
}

// TokenPair represents access and refresh tokens
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Claims is what a validated access token says about its bearer
type Claims struct {
	UserID string
	Role   domain.Role
}

// roleFor assigns admin to configured emails and to accounts whose email or
// name contains "admin".
func (s *UserService) roleFor(email, name string) domain.Role {
	email = strings.ToLower(email)
	if slices.Contains(s.adminEmails, email) ||
		strings.Contains(email, "admin") ||
		strings.Contains(strings.ToLower(name), "admin") {
		return domain.RoleAdmin
	}
	return domain.RoleUser
}

// Register creates a new account with empty progress
func (s *UserService) Register(ctx context.Context, req *domain.UserCreateRequest) (*domain.User, *TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.Register")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	span.SetAttributes(attribute.String("user.email", email))

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		s.logger.Error("Failed to check existing user", zap.Error(err))
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, domain.ErrUserAlreadyExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		return nil, nil, domain.ErrInternalServer
	}

	name := strings.TrimSpace(req.Name)
	user := &domain.User{
		Email:           email,
		Name:            name,
		PasswordHash:    string(hashedPassword),
		Role:            s.roleFor(email, name),
		SolvedProblems:  domain.IDList{},
		StarredProblems: domain.IDList{},
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		s.logger.Error("Failed to create user", zap.Error(err))
		return nil, nil, err
	}

	tokens, err := s.generateTokenPair(user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("User registered successfully",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
	)

	span.SetAttributes(attribute.String("user.id", user.ID))
	return user, tokens, nil
}

// Login authenticates a user and returns tokens
func (s *UserService) Login(ctx context.Context, email, password string) (*domain.User, *TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.Login")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	span.SetAttributes(attribute.String("user.email", email))

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, domain.ErrInvalidCredentials
	}

	tokens, err := s.generateTokenPair(user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("User logged in", zap.String("user_id", user.ID))

	span.SetAttributes(attribute.String("user.id", user.ID))
	return user, tokens, nil
}

// RefreshToken issues a new token pair from a refresh token
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.RefreshToken")
	defer span.End()

	claims, err := s.validateToken(refreshToken, "refresh")
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}

	return s.generateTokenPair(user)
}

// GetUserByID retrieves a user by their ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.GetUserByID")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", id))
	return s.userRepo.FindByID(ctx, id)
}

// UpdateProfile changes the user's name and display name
func (s *UserService) UpdateProfile(ctx context.Context, id string, req *domain.ProfileUpdateRequest) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.UpdateProfile")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", id))

	fields := make(map[string]interface{})
	if req.Name != nil {
		fields["name"] = strings.TrimSpace(*req.Name)
	}
	if req.DisplayName != nil {
		fields["display_name"] = strings.TrimSpace(*req.DisplayName)
	}
	if len(fields) == 0 {
		return nil, domain.ErrEmptyUpdate
	}

	if err := s.userRepo.Update(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.userRepo.FindByID(ctx, id)
}

// DeleteAccount removes the user document. The catalog is untouched.
func (s *UserService) DeleteAccount(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "UserService.DeleteAccount")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", id))

	if err := s.userRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("User account deleted", zap.String("user_id", id))
	return nil
}

// ValidateAccessToken validates an access token and returns its claims
func (s *UserService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.validateToken(tokenString, "access")
}

// generateTokenPair creates access and refresh tokens for a user
func (s *UserService) generateTokenPair(user *domain.User) (*TokenPair, error) {
	now := time.Now()
	accessExpiry := now.Add(s.jwtConfig.AccessTokenExpiry)
	refreshExpiry := now.Add(s.jwtConfig.RefreshTokenExpiry)

	accessClaims := jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"type": "access",
		"iat":  now.Unix(),
		"exp":  accessExpiry.Unix(),
		"iss":  s.jwtConfig.Issuer,
	}
	accessToken, err := s.sign(accessClaims)
	if err != nil {
		return nil, err
	}

	refreshClaims := jwt.MapClaims{
		"sub":  user.ID,
		"type": "refresh",
		"iat":  now.Unix(),
		"exp":  refreshExpiry.Unix(),
		"iss":  s.jwtConfig.Issuer,
	}
	refreshToken, err := s.sign(refreshClaims)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExpiry,
	}, nil
}

func (s *UserService) sign(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtConfig.SecretKey))
}

// validateToken checks signature, expiry, issuer and token type
func (s *UserService) validateToken(tokenString, tokenType string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return []byte(s.jwtConfig.SecretKey), nil
	}, jwt.WithIssuer(s.jwtConfig.Issuer))
	if err != nil || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	if t, _ := claims["type"].(string); t != tokenType {
		return nil, domain.ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, domain.ErrInvalidToken
	}
	role, _ := claims["role"].(string)
	return &Claims{UserID: sub, Role: domain.Role(role)}, nil
}
