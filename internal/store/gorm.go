package store

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
)

// productRow is the table layout of a ledger record. Seq keeps insertion order.
type productRow struct {
	ID     int64  `gorm:"primaryKey;autoIncrement:false"`
	Seq    int    `gorm:"not null;index"`
	Name   string `gorm:"not null"`
	QRHash string `gorm:"column:qr_hash;not null"`
	IsFake bool   `gorm:"column:is_fake;not null"`
}

func (productRow) TableName() string { return "products" }

// GormSnapshotter keeps the ledger in a products table keyed by id.
type GormSnapshotter struct {
	db *gorm.DB
}

// OpenGorm connects to a sqlite file or a postgres DSN and migrates the products table.
func OpenGorm(backend, dsn string) (*GormSnapshotter, error) {
	var dialector gorm.Dialector
	switch backend {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported ledger backend %q", backend)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", backend, err)
	}
	if err := db.AutoMigrate(&productRow{}); err != nil {
		return nil, fmt.Errorf("migrate products: %w", err)
	}
	return &GormSnapshotter{db: db}, nil
}

func (g *GormSnapshotter) Load(ctx context.Context) ([]model.Product, bool, error) {
	var rows []productRow
	if err := g.db.WithContext(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, true, fmt.Errorf("load products: %w", err)
	}
	out := make([]model.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Product{ID: r.ID, Name: r.Name, QRHash: r.QRHash, IsFake: r.IsFake})
	}
	return out, true, nil
}

// Save upserts every product and removes rows that are not in the snapshot, in
// one transaction.
func (g *GormSnapshotter) Save(ctx context.Context, products []model.Product) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(products) == 0 {
			return tx.Where("1 = 1").Delete(&productRow{}).Error
		}
		rows := make([]productRow, 0, len(products))
		ids := make([]int64, 0, len(products))
		for i, p := range products {
			rows = append(rows, productRow{ID: p.ID, Seq: i, Name: p.Name, QRHash: p.QRHash, IsFake: p.IsFake})
			ids = append(ids, p.ID)
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("upsert products: %w", err)
		}
		return tx.Where("id NOT IN ?", ids).Delete(&productRow{}).Error
	})
}

func (g *GormSnapshotter) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
