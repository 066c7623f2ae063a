package orders

import (
	"context"
	"fmt"

	"github.com/KevinKickass/OpenRotoCore/internal/molding"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Repository persists orders through gorm.
type Repository struct {
	db *gorm.DB
}

// OpenRepository runs gorm on top of an existing pgx pool. Gorm's own query logging
// is silenced; failures surface as returned errors.
func OpenRepository(pool *pgxpool.Pool) (*Repository, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open order database: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&OrderRecord{}); err != nil {
		return fmt.Errorf("failed to migrate orders: %w", err)
	}
	return nil
}

// Save inserts or fully updates the order.
func (r *Repository) Save(ctx context.Context, o *molding.Order) error {
	rec := toRecord(o)
	if err := r.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to save order %s: %w", o.OrderID, err)
	}
	return nil
}

func (r *Repository) LoadAll(ctx context.Context) ([]*molding.Order, error) {
	var recs []OrderRecord
	if err := r.db.WithContext(ctx).Order("created_at").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}

	out := make([]*molding.Order, len(recs))
	for i, rec := range recs {
		out[i] = rec.toOrder()
	}
	return out, nil
}
