package repository

import (
	"context"

	"brokerdesk/internal/domain/entity"
)

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*entity.User, error)
	ListByRoles(ctx context.Context, roles []string) ([]*entity.User, error)
	Update(ctx context.Context, user *entity.User) error
}
