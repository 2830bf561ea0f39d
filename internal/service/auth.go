package service

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"school_messenger/internal/config"
	"school_messenger/internal/domain"
	"school_messenger/internal/repository"
	apperrors "school_messenger/pkg/errors"
	"school_messenger/pkg/jwt"
	"school_messenger/pkg/logger"
)

type AuthService interface {
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	// ValidateToken checks the bearer credential and resolves the owning user
	// and school. Every failure here is terminal for the connection attempt.
	ValidateToken(ctx context.Context, tokenString string) (*domain.User, *domain.School, error)
}

type LoginResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
}

type authService struct {
	userRepo  repository.UserRepository
	groupRepo repository.GroupRepository
	jwtCfg    config.JWTConfig
	log       logger.Logger
}

func NewAuthService(userRepo repository.UserRepository, groupRepo repository.GroupRepository, jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{
		userRepo:  userRepo,
		groupRepo: groupRepo,
		jwtCfg:    jwtCfg,
		log:       log,
	}
}

func (s *authService) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		// Do not reveal whether the account exists
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, apperrors.ErrUnauthenticated
	}

	school, err := s.groupRepo.GetSchool(ctx, user.SchoolID)
	if err != nil {
		return nil, err
	}
	if !school.IsActive {
		return nil, apperrors.ErrSchoolInactive
	}

	token, err := jwt.GenerateAccessToken(user.ID, user.SchoolID, s.jwtCfg.AccessSecret, s.jwtCfg.AccessTTL, s.jwtCfg.Issuer)
	if err != nil {
		s.log.Error("Failed to generate access token", "error", err)
		return nil, apperrors.ErrInternalServer
	}

	user.PasswordHash = ""
	return &LoginResponse{User: user, AccessToken: token}, nil
}

func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*domain.User, *domain.School, error) {
	if tokenString == "" {
		return nil, nil, apperrors.ErrUnauthenticated
	}

	claims, err := jwt.ParseAccessToken(tokenString, s.jwtCfg.AccessSecret)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, apperrors.ErrInvalidToken
	}
	if !user.IsActive {
		return nil, nil, apperrors.ErrUnauthenticated
	}
	if user.SchoolID != claims.SchoolID {
		// Token was minted for a different school than the user now belongs to
		return nil, nil, apperrors.ErrSchoolMismatch
	}

	school, err := s.groupRepo.GetSchool(ctx, user.SchoolID)
	if err != nil {
		return nil, nil, err
	}
	if !school.IsActive {
		return nil, nil, apperrors.ErrSchoolInactive
	}

	return user, school, nil
}
