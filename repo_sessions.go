package credentials

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuthSessions tracks refresh-token lineage. Each refresh JWT carries a
// session id as its jti; rotating a session retires it and any token
// minted against it. Rotation is a conditional update so a stolen or
// replayed refresh token can win at most once.
type AuthSessions interface {
	GetByID(ctx context.Context, id uuid.UUID) (*AuthSession, error)
	Start(ctx context.Context, session *AuthSession) (*AuthSession, error)
	StartTx(ctx context.Context, tx bun.IDB, session *AuthSession) (*AuthSession, error)
	Rotate(ctx context.Context, id uuid.UUID, now time.Time) (*AuthSession, error)
	RotateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (*AuthSession, error)
	RevokeAll(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error)
	RevokeAllTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, now time.Time) (int64, error)
}

type authSessions struct {
	repository.Repository[*AuthSession]
	db *bun.DB
}

var _ AuthSessions = (*authSessions)(nil)

func NewAuthSessionsRepository(db *bun.DB) AuthSessions {
	repo := repository.NewRepository[*AuthSession](db, repository.ModelHandlers[*AuthSession]{
		NewRecord: func() *AuthSession { return &AuthSession{} },
		GetID: func(s *AuthSession) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *AuthSession, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
	})

	return &authSessions{Repository: repo, db: db}
}

func (r *authSessions) GetByID(ctx context.Context, id uuid.UUID) (*AuthSession, error) {
	record := &AuthSession{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidRefreshToken.Clone()
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve session")
	}

	return record, nil
}

func (r *authSessions) Start(ctx context.Context, session *AuthSession) (*AuthSession, error) {
	return r.StartTx(ctx, r.db, session)
}

func (r *authSessions) StartTx(ctx context.Context, tx bun.IDB, session *AuthSession) (*AuthSession, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}

	created, err := r.Repository.CreateTx(ctx, tx, session)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to start session")
	}

	return created, nil
}

func (r *authSessions) Rotate(ctx context.Context, id uuid.UUID, now time.Time) (*AuthSession, error) {
	return r.RotateTx(ctx, r.db, id, now)
}

// RotateTx marks a live session rotated. A session that is already
// rotated, revoked, or expired does not match the predicate, so a
// replayed jti gets ErrInvalidRefreshToken here.
func (r *authSessions) RotateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (*AuthSession, error) {
	res, err := tx.NewUpdate().
		Model((*AuthSession)(nil)).
		Set("rotated_at = ?", now).
		Where("id = ?", id).
		Where("rotated_at IS NULL").
		Where("revoked_at IS NULL").
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to rotate session")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to rotate session")
	}

	if rows == 0 {
		return nil, ErrInvalidRefreshToken.Clone()
	}

	record := &AuthSession{}
	if err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load rotated session")
	}

	return record, nil
}

func (r *authSessions) RevokeAll(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error) {
	return r.RevokeAllTx(ctx, r.db, accountID, now)
}

// RevokeAllTx revokes every live session for the account and reports
// how many it touched. Calling it twice is harmless; the second call
// finds nothing to revoke.
func (r *authSessions) RevokeAllTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, now time.Time) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*AuthSession)(nil)).
		Set("revoked_at = ?", now).
		Where("account_id = ?", accountID).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to revoke sessions")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to revoke sessions")
	}

	return rows, nil
}
