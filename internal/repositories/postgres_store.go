package repositories

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// edgeRecord is the row shape shared by the four toggle tables. The
// composite primary key is the uniqueness constraint toggles rely on.
type edgeRecord struct {
	SubjectID string    `gorm:"type:varchar(128);primaryKey"`
	UserID    string    `gorm:"type:varchar(128);primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

func (r edgeRecord) toEdge(rel models.Relation) models.Edge {
	return models.Edge{Relation: rel, SubjectID: r.SubjectID, UserID: r.UserID, CreatedAt: r.CreatedAt}
}

// PostgresStore implements Store on PostgreSQL through GORM.
type PostgresStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to dsn. Duplicate-key errors are translated by the
// driver so they can be matched with gorm.ErrDuplicatedKey.
func OpenPostgres(dsn string, log *zap.Logger) (*gorm.DB, error) {
	level := logger.Warn
	if log.Core().Enabled(zap.DebugLevel) {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(level),
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, err
	}
	log.Info("Successfully connected to PostgreSQL")
	return db, nil
}

// NewPostgresStore creates a PostgresStore over db.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate creates or updates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&models.User{}, &models.Post{}, &models.Comment{}, &models.Notification{}); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}
	for _, rel := range models.EdgeRelations {
		table := string(rel)
		if err := db.Table(table).AutoMigrate(&edgeRecord{}); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", table, err)
		}
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_user_id ON %s (user_id)", table, table)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to index %s: %w", table, err)
		}
	}
	return nil
}

// translate maps GORM and driver errors onto the apperr taxonomy.
func translate(err error, kind, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(kind, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s %q: %w", kind, id, apperr.ErrConflict)
	case isTransientSQL(err):
		return apperr.Transient(err)
	}
	return err
}

func isTransientSQL(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "57P01", pgErr.Code == "53300":
			return true
		}
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
