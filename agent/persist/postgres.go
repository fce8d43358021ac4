package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
)

type PostgresConfig struct {
	DSN          string        `required:"false"`
	DialTimeout  time.Duration `split_words:"true" default:"5s"`
	QueryTimeout time.Duration `split_words:"true" default:"10s"`
}

type contactRow struct {
	bun.BaseModel `bun:"table:contacts,alias:c"`

	ID        string    `bun:"id,pk"`
	UserID    string    `bun:"user_id,notnull"`
	Name      string    `bun:"name,notnull"`
	Email     string    `bun:"email,notnull"`
	Birthday  time.Time `bun:"birthday,type:date,notnull"`
	DedupKey  string    `bun:"dedup_key,unique,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type eventRow struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID          string    `bun:"id,pk"`
	UserID      string    `bun:"user_id,notnull"`
	Name        string    `bun:"name,notnull"`
	Date        time.Time `bun:"date,type:date,notnull"`
	IsRecurring bool      `bun:"is_recurring,notnull"`
	DedupKey    string    `bun:"dedup_key,unique,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// PostgresRepository writes contacts and events with bun. Inserts are
// idempotent on dedup_key.
type PostgresRepository struct {
	db    *bun.DB
	newID func() string
}

var (
	_ contract.ContactCreator = (*PostgresRepository)(nil)
	_ contract.EventCreator   = (*PostgresRepository)(nil)
)

func NewPostgresRepository(cfg PostgresConfig) (*PostgresRepository, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
		pgdriver.WithReadTimeout(cfg.QueryTimeout),
		pgdriver.WithWriteTimeout(cfg.QueryTimeout),
	)
	db := bun.NewDB(sql.OpenDB(connector), pgdialect.New())
	return NewPostgresRepositoryFromDB(db), nil
}

func NewPostgresRepositoryFromDB(db *bun.DB) *PostgresRepository {
	return &PostgresRepository{db: db, newID: uuid.NewString}
}

// CreateSchema creates the contacts and events tables when missing.
func (r *PostgresRepository) CreateSchema(ctx context.Context) error {
	for _, model := range []any{(*contactRow)(nil), (*eventRow)(nil)} {
		if _, err := r.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) CreateContact(ctx context.Context, who contract.Identity, in contract.NewContact) (string, error) {
	if err := checkCall(ctx, who); err != nil {
		return "", err
	}
	row := &contactRow{
		ID:       r.newID(),
		UserID:   who.UserID,
		Name:     in.Name,
		Email:    in.Email,
		Birthday: in.Birthday,
		DedupKey: dedupKey(in.DedupKey, r.newID),
	}

	res, err := r.db.NewInsert().Model(row).On("CONFLICT (dedup_key) DO NOTHING").Exec(ctx)
	if err != nil {
		return "", mapError("insert contact", err)
	}
	if inserted(res) {
		return row.ID, nil
	}

	var id string
	err = r.db.NewSelect().Model((*contactRow)(nil)).Column("id").Where("dedup_key = ?", row.DedupKey).Scan(ctx, &id)
	if err != nil {
		return "", mapError("lookup contact", err)
	}
	return id, nil
}

func (r *PostgresRepository) CreateEvent(ctx context.Context, who contract.Identity, in contract.NewEvent) (string, error) {
	if err := checkCall(ctx, who); err != nil {
		return "", err
	}
	row := &eventRow{
		ID:          r.newID(),
		UserID:      who.UserID,
		Name:        in.Name,
		Date:        in.Date,
		IsRecurring: in.IsRecurring,
		DedupKey:    dedupKey(in.DedupKey, r.newID),
	}

	res, err := r.db.NewInsert().Model(row).On("CONFLICT (dedup_key) DO NOTHING").Exec(ctx)
	if err != nil {
		return "", mapError("insert event", err)
	}
	if inserted(res) {
		return row.ID, nil
	}

	var id string
	err = r.db.NewSelect().Model((*eventRow)(nil)).Column("id").Where("dedup_key = ?", row.DedupKey).Scan(ctx, &id)
	if err != nil {
		return "", mapError("lookup event", err)
	}
	return id, nil
}

func dedupKey(key string, newID func() string) string {
	if key = strings.TrimSpace(key); key != "" {
		return key
	}
	return newID()
}

func inserted(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err != nil || n > 0
}

// Postgres error classes that mean the date value itself was rejected.
var dateErrorCodes = map[string]struct{}{
	"22007": {}, // invalid_datetime_format
	"22008": {}, // datetime_field_overflow
	"23514": {}, // check_violation
}

func mapError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		if _, ok := dateErrorCodes[pgErr.Field('C')]; ok {
			return fmt.Errorf("%w: %s: %s", contract.ErrInvalidDate, op, pgErr.Field('M'))
		}
	}
	return fmt.Errorf("%w: %s: %v", contract.ErrPersistence, op, err)
}
