package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/campusmart/pkg/config"
	"github.com/example/campusmart/pkg/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// ProductRepository is the inventory ledger. Stock mutations are single
// conditional UPDATEs paired with a journal row, so concurrent orders for the
// same product contend only inside MySQL and replays of the same operation
// are no-ops.
type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(cfg *config.MySQLConfig) (*ProductRepository, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	if err := db.AutoMigrate(&models.Product{}, &models.StockMovement{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return &ProductRepository{db: db}, nil
}

func (r *ProductRepository) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// DecrementStock takes qty units off a product for one order. The scope id is
// the order id: replaying the decrement for the same (order, product) finds
// the journal row and returns without touching stock. Decrement below zero is
// refused with ErrInsufficientStock; the caller decides whether to leave the
// line for repair.
func (r *ProductRepository) DecrementStock(ctx context.Context, orderID, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive: %w", models.ErrValidation)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := movementExists(tx, orderID, productID, models.MovementOut)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}

		res := tx.Model(&models.Product{}).
			Where("id = ? AND stock_count >= ?", productID, qty).
			UpdateColumn("stock_count", gorm.Expr("stock_count - ?", qty))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
			}
			return fmt.Errorf("product %s: %w", productID, models.ErrInsufficientStock)
		}

		return tx.Create(&models.StockMovement{
			ScopeID:   orderID,
			ProductID: productID,
			Direction: models.MovementOut,
			Quantity:  qty,
		}).Error
	})
}

// RestoreStock returns qty units for a cancelled or refunded vendor order.
// Always additive and safe; the journal keyed by vendor order id keeps a
// retried cancellation from restoring twice.
func (r *ProductRepository) RestoreStock(ctx context.Context, vendorOrderID, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive: %w", models.ErrValidation)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := movementExists(tx, vendorOrderID, productID, models.MovementIn)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}

		res := tx.Model(&models.Product{}).
			Where("id = ?", productID).
			UpdateColumn("stock_count", gorm.Expr("stock_count + ?", qty))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
		}

		return tx.Create(&models.StockMovement{
			ScopeID:   vendorOrderID,
			ProductID: productID,
			Direction: models.MovementIn,
			Quantity:  qty,
		}).Error
	})
}

// HasMovement reports whether a ledger operation was already applied; the
// repair pass uses it to find unpaired decrements.
func (r *ProductRepository) HasMovement(ctx context.Context, scopeID, productID string, dir models.MovementDirection) (bool, error) {
	return movementExists(r.db.WithContext(ctx), scopeID, productID, dir)
}

func movementExists(tx *gorm.DB, scopeID, productID string, dir models.MovementDirection) (bool, error) {
	var m models.StockMovement
	err := tx.Where("scope_id = ? AND product_id = ? AND direction = ?", scopeID, productID, dir).
		First(&m).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}
