package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/d60-Lab/vertex-tips/internal/model"
	"github.com/d60-Lab/vertex-tips/internal/repository"
	"github.com/d60-Lab/vertex-tips/pkg/auth"
	"github.com/d60-Lab/vertex-tips/pkg/logger"
	"github.com/d60-Lab/vertex-tips/pkg/metrics"
)

const minPasswordLen = 6

// AuthService 登录、注册与令牌校验
type AuthService interface {
	auth.Verifier
	Login(ctx context.Context, email, password string) (string, *model.User, error)
	Register(ctx context.Context, email, password string) (*model.User, error)
	// CreateUser 供命令行与启动引导使用，可指定角色
	CreateUser(ctx context.Context, email, password, role string) (*model.User, error)
	// EnsureAdmin 邮箱不存在时创建管理员，返回是否新建
	EnsureAdmin(ctx context.Context, email, password string) (bool, error)
}

type authService struct {
	users    repository.UserRepository
	tokens   *auth.TokenManager
	limiter  LoginLimiter
	validate *validator.Validate
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenManager, limiter LoginLimiter) AuthService {
	if limiter == nil {
		limiter = NewNoopLoginLimiter()
	}
	return &authService{users: users, tokens: tokens, limiter: limiter, validate: validator.New()}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *authService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	email = normalizeEmail(email)

	allowed, err := s.limiter.Allowed(ctx, email)
	if err != nil {
		// 限流存储不可用时放行
		logger.Warn("login limiter unavailable", zap.Error(err))
	}
	if !allowed {
		return "", nil, ErrLoginThrottled
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.recordFailure(ctx, email)
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.recordFailure(ctx, email)
		return "", nil, ErrInvalidCredentials
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		logger.Warn("reset login failures", zap.Error(err))
	}
	token, err := s.tokens.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *authService) recordFailure(ctx context.Context, email string) {
	metrics.LoginFailures.Inc()
	if err := s.limiter.Fail(ctx, email); err != nil {
		logger.Warn("record login failure", zap.Error(err))
	}
}

func (s *authService) Verify(token string) (*auth.Claims, error) {
	return s.tokens.Verify(token)
}

func (s *authService) Register(ctx context.Context, email, password string) (*model.User, error) {
	return s.CreateUser(ctx, email, password, model.RoleUser)
}

func (s *authService) CreateUser(ctx context.Context, email, password, role string) (*model.User, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, invalid("email", "must be a valid email")
	}
	if len(password) < minPasswordLen {
		return nil, invalid("password", "must be at least %d characters", minPasswordLen)
	}
	if !model.ValidRole(role) {
		return nil, invalid("role", "must be one of: user, admin")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{Email: email, PasswordHash: string(hash), Role: role}
	created, err := s.users.Create(ctx, u)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrEmailTaken
	}
	return u, nil
}

func (s *authService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	_, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if _, err := s.CreateUser(ctx, email, password, model.RoleAdmin); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return false, nil
		}
		return false, err
	}
	logger.Info("bootstrap admin created", zap.String("email", normalizeEmail(email)))
	return true, nil
}
