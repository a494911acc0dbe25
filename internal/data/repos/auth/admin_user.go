package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type AdminUserRepo interface {
	Create(dbc dbctx.Context, row *types.AdminUser) error
	GetByEmail(dbc dbctx.Context, email string) (*types.AdminUser, error)
	UpdatePassword(dbc dbctx.Context, id uuid.UUID, hash string) error
	TouchLogin(dbc dbctx.Context, id uuid.UUID, at time.Time) error
}

type adminUserRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAdminUserRepo(db *gorm.DB, log *logger.Logger) AdminUserRepo {
	return &adminUserRepo{db: db, log: log.With("repo", "AdminUserRepo")}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *adminUserRepo) Create(dbc dbctx.Context, row *types.AdminUser) error {
	if row == nil || normalizeEmail(row.Email) == "" {
		return fmt.Errorf("missing email")
	}
	row.Email = normalizeEmail(row.Email)
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Context()).Create(row).Error
}

func (r *adminUserRepo) GetByEmail(dbc dbctx.Context, email string) (*types.AdminUser, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.AdminUser
	if err := txx.WithContext(dbc.Context()).
		Where("email = ?", normalizeEmail(email)).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *adminUserRepo) UpdatePassword(dbc dbctx.Context, id uuid.UUID, hash string) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Context()).
		Model(&types.AdminUser{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"password_hash": hash, "updated_at": time.Now().UTC()}).Error
}

func (r *adminUserRepo) TouchLogin(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Context()).
		Model(&types.AdminUser{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at.UTC()).Error
}
