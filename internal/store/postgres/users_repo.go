package postgres

import (
	"context"

	"github.com/uptrace/bun"

	"meetly/backend/internal/domain"
	"meetly/backend/internal/store"
)

type UserRepo struct {
	db *bun.DB
}

func NewUserRepo(db *bun.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var u domain.User
	err := r.db.NewSelect().Model(&u).Where("u.id = ?", userID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.User{}, notFound(err)
	}
	return u, nil
}

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	err := r.db.NewSelect().Model(&u).Where("u.username = ?", username).Limit(1).Scan(ctx)
	if err != nil {
		return domain.User{}, notFound(err)
	}
	return u, nil
}

func (r *UserRepo) UpsertUser(ctx context.Context, user domain.User) (domain.User, error) {
	m := user
	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("name = EXCLUDED.name").
		Set("email = EXCLUDED.email").
		Set("image_url = EXCLUDED.image_url").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		if code, _ := pgErrorCode(err); code == codeUniqueViolation {
			return domain.User{}, store.ErrConflict
		}
		return domain.User{}, err
	}
	return m, nil
}
