package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/vertex-tips/internal/model"
	"github.com/d60-Lab/vertex-tips/internal/repository"
)

type UserService interface {
	List(ctx context.Context) ([]model.User, error)
	SetRole(ctx context.Context, id uint, role string) (*model.User, error)
}

type userService struct {
	repo repository.UserRepository
}

func NewUserService(repo repository.UserRepository) UserService {
	return &userService{repo: repo}
}

func (s *userService) List(ctx context.Context) ([]model.User, error) {
	return s.repo.List(ctx)
}

func (s *userService) SetRole(ctx context.Context, id uint, role string) (*model.User, error) {
	if !model.ValidRole(role) {
		return nil, invalid("role", "must be one of: user, admin")
	}
	ok, err := s.repo.UpdateRole(ctx, id, role)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}
