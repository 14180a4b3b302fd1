// Package repository contains the PostgreSQL data access implementation.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/rbarros/cashback-system/internal/domain"
	"github.com/rbarros/cashback-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const purchaseViewSelect = `
	SELECT p.id, p.code, p.value::text, p.purchase_date, p.cashback_value::text,
	       p.status_id, p.user_id, s.name, u.cpf, p.created_at, p.updated_at
	FROM purchases p
	JOIN purchase_statuses s ON s.id = p.status_id
	JOIN users u ON u.id = p.user_id`

// PostgresRepository provides access to the PostgreSQL data store.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository and initializes the
// database schema through migrations.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Serialization failures and deadlocks are worth retrying;
		// pgxpool handles plain reconnects itself.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// EnsureStatuses seeds the canonical purchase status rows. It is
// idempotent and must run before any purchase can be created.
func (r *PostgresRepository) EnsureStatuses(ctx context.Context) error {
	for _, name := range []string{model.StatusApproved, model.StatusInValidation, model.StatusDisapproved} {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO purchase_statuses (name, description) VALUES ($1, $1)
			 ON CONFLICT (name) DO NOTHING`,
			name,
		)
		if err != nil {
			return fmt.Errorf("seed status %q: %w", name, err)
		}
	}
	return nil
}

// CreateUser persists a new user. Duplicate email or CPF is reported
// through the corresponding domain error.
func (r *PostgresRepository) CreateUser(ctx context.Context, in model.UserCreate, passwordHash []byte) (*model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (full_name, email, cpf, password_hash) VALUES ($1, $2, $3, $4)
		 RETURNING id, full_name, email, cpf, password_hash, created_at, updated_at`,
		in.FullName, in.Email, in.CPF, string(passwordHash),
	).Scan(&u.ID, &u.FullName, &u.Email, &u.CPF, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "cpf") {
				return nil, fmt.Errorf("%w: %s", domain.ErrCPFTaken, in.CPF)
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrEmailTaken, in.Email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func (r *PostgresRepository) getUser(ctx context.Context, q string, arg any) (*model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx, q, arg).
		Scan(&u.ID, &u.FullName, &u.Email, &u.CPF, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserByID returns the user with the given id.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getUser(ctx,
		`SELECT id, full_name, email, cpf, password_hash, created_at, updated_at FROM users WHERE id = $1`, id)
}

// GetUserByEmail returns the user with the given email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUser(ctx,
		`SELECT id, full_name, email, cpf, password_hash, created_at, updated_at FROM users WHERE email = $1`, email)
}

// GetUserByCPF returns the user with the given CPF.
func (r *PostgresRepository) GetUserByCPF(ctx context.Context, cpf string) (*model.User, error) {
	return r.getUser(ctx,
		`SELECT id, full_name, email, cpf, password_hash, created_at, updated_at FROM users WHERE cpf = $1`, cpf)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (*model.Purchase, error) {
	var (
		p            model.Purchase
		valueText    string
		cashbackText string
	)
	err := row.Scan(&p.ID, &p.Code, &valueText, &p.Date, &cashbackText,
		&p.StatusID, &p.UserID, &p.Status, &p.OwnerCPF, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if p.Value, err = decimal.NewFromString(valueText); err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}
	if p.CashbackValue, err = decimal.NewFromString(cashbackText); err != nil {
		return nil, fmt.Errorf("parse cashback value: %w", err)
	}

	return &p, nil
}

// GetPurchaseByID returns the purchase with the given id as a
// denormalized view (status name and owner CPF resolved).
func (r *PostgresRepository) GetPurchaseByID(ctx context.Context, id int64) (*model.Purchase, error) {
	p, err := scanPurchase(r.pool.QueryRow(ctx, purchaseViewSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("get purchase: %w", err)
	}
	return p, nil
}

// GetPurchaseByCode returns the purchase with the given code.
func (r *PostgresRepository) GetPurchaseByCode(ctx context.Context, code string) (*model.Purchase, error) {
	p, err := scanPurchase(r.pool.QueryRow(ctx, purchaseViewSelect+` WHERE p.code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("get purchase by code: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) listPurchases(ctx context.Context, q string, args ...any) ([]model.Purchase, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select purchases: %w", err)
	}
	defer rows.Close()

	var res []model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListPurchases returns purchases across all users paginated in
// insertion order. An out-of-range skip yields an empty result.
func (r *PostgresRepository) ListPurchases(ctx context.Context, skip, limit int) ([]model.Purchase, error) {
	return r.listPurchases(ctx, purchaseViewSelect+` ORDER BY p.id OFFSET $1 LIMIT $2`, skip, limit)
}

// ListPurchasesByUser returns the user's purchases paginated in
// insertion order. An out-of-range skip yields an empty result.
func (r *PostgresRepository) ListPurchasesByUser(ctx context.Context, userID int64, skip, limit int) ([]model.Purchase, error) {
	return r.listPurchases(ctx,
		purchaseViewSelect+` WHERE p.user_id = $1 ORDER BY p.id OFFSET $2 LIMIT $3`,
		userID, skip, limit)
}

// SumCashbackByUser returns the decimal sum of the user's recorded
// cashback values.
func (r *PostgresRepository) SumCashbackByUser(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var text string
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cashback_value), 0)::text FROM purchases WHERE user_id = $1`,
		userID,
	).Scan(&text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum cashback: %w", err)
	}

	sum, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse cashback sum: %w", err)
	}
	return sum, nil
}

func statusIDByName(ctx context.Context, tx pgx.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM purchase_statuses WHERE name = $1`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", domain.ErrStatusNotSeeded, name)
		}
		return 0, fmt.Errorf("get status: %w", err)
	}
	return id, nil
}

// CreatePurchase persists a new purchase in a single transaction.
// The owner CPF is resolved to a user id, an absent status falls back
// to the default-status rule, and an absent cashback value is computed
// by the cashback policy. A duplicate code is reported as
// domain.ErrCodeAlreadyUsed.
func (r *PostgresRepository) CreatePurchase(ctx context.Context, in model.PurchaseCreate) (*model.Purchase, error) {
	var created *model.Purchase

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var owner model.User
		err = tx.QueryRow(ctx, `SELECT id, cpf FROM users WHERE cpf = $1`, in.CPF).
			Scan(&owner.ID, &owner.CPF)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("get owner: %w", err)
		}

		statusName := in.Status
		if statusName == "" {
			statusName = domain.DefaultStatusName(owner.CPF)
		}
		statusID, err := statusIDByName(ctx, tx, statusName)
		if err != nil {
			return err
		}

		cashback := domain.CalculateCashback(in.Value)
		if in.CashbackValue != nil {
			cashback = *in.CashbackValue
		}

		var id int64
		err = tx.QueryRow(ctx,
			`INSERT INTO purchases (code, value, purchase_date, cashback_value, status_id, user_id)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			in.Code, in.Value.String(), in.Date, cashback.String(), statusID, owner.ID,
		).Scan(&id)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: %s", domain.ErrCodeAlreadyUsed, in.Code)
			}
			return fmt.Errorf("insert purchase: %w", err)
		}

		created, err = scanPurchase(tx.QueryRow(ctx, purchaseViewSelect+` WHERE p.id = $1`, id))
		if err != nil {
			return fmt.Errorf("reload purchase: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// UpdatePurchase applies an explicit field-by-field merge of patch
// onto the stored purchase inside one transaction. Changing the value
// without an explicit cashback override recomputes the cashback.
func (r *PostgresRepository) UpdatePurchase(ctx context.Context, p *model.Purchase, patch model.PurchasePatch) (*model.Purchase, error) {
	var updated *model.Purchase

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		code := p.Code
		value := p.Value
		date := p.Date
		cashback := p.CashbackValue
		statusID := p.StatusID
		userID := p.UserID

		if patch.Code != nil {
			code = *patch.Code
		}
		if patch.Value != nil {
			value = *patch.Value
		}
		if patch.Date != nil {
			date = *patch.Date
		}
		if patch.Status != nil {
			statusID, err = statusIDByName(ctx, tx, *patch.Status)
			if err != nil {
				return err
			}
		}
		if patch.CPF != nil {
			err = tx.QueryRow(ctx, `SELECT id FROM users WHERE cpf = $1`, *patch.CPF).Scan(&userID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return domain.ErrUserNotFound
				}
				return fmt.Errorf("get owner: %w", err)
			}
		}

		switch {
		case patch.CashbackValue != nil:
			cashback = *patch.CashbackValue
		case patch.Value != nil:
			cashback = domain.CalculateCashback(value)
		}

		_, err = tx.Exec(ctx,
			`UPDATE purchases
			 SET code = $2, value = $3, purchase_date = $4, cashback_value = $5,
			     status_id = $6, user_id = $7, updated_at = now()
			 WHERE id = $1`,
			p.ID, code, value.String(), date, cashback.String(), statusID, userID,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: %s", domain.ErrCodeAlreadyUsed, code)
			}
			return fmt.Errorf("update purchase: %w", err)
		}

		updated, err = scanPurchase(tx.QueryRow(ctx, purchaseViewSelect+` WHERE p.id = $1`, p.ID))
		if err != nil {
			return fmt.Errorf("reload purchase: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeletePurchaseByID removes the purchase and returns its last
// snapshot, or nil if it does not exist. Safe to call repeatedly.
func (r *PostgresRepository) DeletePurchaseByID(ctx context.Context, id int64) (*model.Purchase, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	snapshot, err := scanPurchase(tx.QueryRow(ctx, purchaseViewSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get purchase: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM purchases WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete purchase: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return snapshot, nil
}
