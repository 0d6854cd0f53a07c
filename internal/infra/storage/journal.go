// Package storage persists trades and order outcomes with gorm.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"cross_arb/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// TradeRecord is a submitted buy/sell pair.
type TradeRecord struct {
	ID            uint   `gorm:"primaryKey"`
	Pair          string `gorm:"index"`
	BuyLeg        string
	SellLeg       string
	BuyOrderID    string `gorm:"index"`
	SellOrderID   string `gorm:"index"`
	Amount        string // decimals are kept as strings
	BuyPrice      string
	SellPrice     string
	Profitability string
	CreatedAt     time.Time `gorm:"index"`
}

// OrderRecord is a single order and its final status.
type OrderRecord struct {
	OrderID    string `gorm:"primaryKey;size:64"`
	Market     string `gorm:"index"`
	Symbol     string
	Side       string
	Amount     string
	Status     string `gorm:"index"`
	Price      string
	PlacedAt   time.Time
	ResolvedAt *time.Time
}

// Journal stores trades and orders.
type Journal struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
// An empty sqlite dsn resolves to a file under the user config directory.
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		if dsn == "" {
			p, err := defaultDBPath()
			if err != nil {
				return nil, fmt.Errorf("failed to resolve DB path: %w", err)
			}
			dsn = p
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db)
}

// New wraps an open connection and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if err := db.AutoMigrate(&TradeRecord{}, &OrderRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Journal{db: db}, nil
}

func defaultDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "CrossArb", "data", "journal.db"), nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (j *Journal) RecordTrade(ctx context.Context, trade domain.Trade) error {
	rec := TradeRecord{
		Pair:          trade.Pair,
		BuyLeg:        trade.BuyLeg.String(),
		SellLeg:       trade.SellLeg.String(),
		BuyOrderID:    trade.BuyOrderID,
		SellOrderID:   trade.SellOrderID,
		Amount:        trade.Amount.String(),
		BuyPrice:      trade.BuyPrice.String(),
		SellPrice:     trade.SellPrice.String(),
		Profitability: trade.Profitability.String(),
		CreatedAt:     trade.CreatedAt,
	}
	return j.db.WithContext(ctx).Create(&rec).Error
}

func (j *Journal) RecordOrder(ctx context.Context, key domain.LegKey, orderID string, side domain.Side, amount decimal.Decimal) error {
	rec := OrderRecord{
		OrderID:  orderID,
		Market:   key.Market,
		Symbol:   key.Symbol,
		Side:     string(side),
		Amount:   amount.String(),
		Status:   string(domain.OrderStatusNew),
		PlacedAt: time.Now(),
	}
	return j.db.WithContext(ctx).Save(&rec).Error
}

// ResolveOrder stores the final status. Unknown order ids are ignored.
func (j *Journal) ResolveOrder(ctx context.Context, orderID string, status domain.OrderStatus, price decimal.Decimal) error {
	now := time.Now()
	res := j.db.WithContext(ctx).Model(&OrderRecord{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{
			"status":      string(status),
			"price":       price.String(),
			"resolved_at": &now,
		})
	return res.Error
}

// Order retrieves an order by id. A missing order returns nil without error.
func (j *Journal) Order(ctx context.Context, orderID string) (*OrderRecord, error) {
	var rec OrderRecord
	err := j.db.WithContext(ctx).First(&rec, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecentTrades returns up to limit trades, newest first.
func (j *Journal) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	var trades []TradeRecord
	err := j.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&trades).Error
	return trades, err
}

// UnresolvedOrders returns orders without a final status.
func (j *Journal) UnresolvedOrders(ctx context.Context) ([]OrderRecord, error) {
	var orders []OrderRecord
	err := j.db.WithContext(ctx).Where("resolved_at IS NULL").Order("placed_at").Find(&orders).Error
	return orders, err
}
