// Package audit keeps an append-only relational copy of receipts and events
// for reconciliation outside the daemon.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"vitrine/core/events"
	"vitrine/core/types"
	"vitrine/native/market"
)

const defaultQueueSize = 256

var ErrUnsupportedDriver = errors.New("audit: unsupported driver")

// Open connects to the audit database and migrates it. Supported drivers are
// "sqlite" and "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return db, nil
}

// Store writes audit rows. It implements events.Emitter; writes happen on a
// background worker so emission never blocks a purchase.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	queue   chan *types.Event
	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool
}

// NewStore wraps db and starts the write worker.
func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger, now: time.Now, queue: make(chan *types.Event, defaultQueueSize)}
	s.wg.Add(1)
	go s.worker()
	return s
}

// Close drains pending events and stops the worker.
func (s *Store) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.closeMu.Unlock()
	s.wg.Wait()
}

// Emit implements events.Emitter.
func (s *Store) Emit(evt events.Event) {
	flat := events.Flatten(evt)
	if flat == nil {
		return
	}
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return
	}
	s.queue <- flat.Clone()
}

func (s *Store) worker() {
	defer s.wg.Done()
	for evt := range s.queue {
		if err := s.RecordEvent(context.Background(), evt); err != nil {
			s.logger.Error("audit write failed", "type", evt.Type, "error", err)
		}
	}
}

// RecordEvent stores evt. Purchase completions also produce a receipt row.
func (s *Store) RecordEvent(ctx context.Context, evt *types.Event) error {
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := EventRow{Type: evt.Type, Attributes: string(attrs), CreatedAt: s.now().UTC()}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if evt.Type != market.EventTypePurchaseCompleted {
			return nil
		}
		receipt, err := receiptFromAttributes(evt.Attributes)
		if err != nil {
			return err
		}
		receipt.RecordedAt = row.CreatedAt
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(receipt).Error
	})
}

// RecordReceipt stores r directly. Duplicate sequences are ignored.
func (s *Store) RecordReceipt(ctx context.Context, r *market.Receipt) error {
	if r == nil {
		return nil
	}
	row := &ReceiptRow{
		Sequence:       r.Sequence,
		ProductID:      r.ProductID,
		Buyer:          r.Buyer.String(),
		Seller:         r.Seller.String(),
		PricePaid:      r.PricePaid.String(),
		PlatformFee:    r.PlatformFee.String(),
		SellerAmount:   r.SellerAmount.String(),
		PromoterAmount: r.PromoterAmount.String(),
		Change:         r.Change.String(),
		RecordedAt:     s.now().UTC(),
	}
	if r.Promoter != nil {
		row.Promoter = r.Promoter.String()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

// Receipts returns up to limit receipt rows with sequence >= from.
func (s *Store) Receipts(ctx context.Context, from uint64, limit int) ([]ReceiptRow, error) {
	var rows []ReceiptRow
	q := s.db.WithContext(ctx).Where("sequence >= ?", from).Order("sequence asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Events returns up to limit events of the given type, oldest first. An empty
// type matches every event.
func (s *Store) Events(ctx context.Context, eventType string, limit int) ([]EventRow, error) {
	var rows []EventRow
	q := s.db.WithContext(ctx).Order("id asc")
	if eventType != "" {
		q = q.Where("type = ?", eventType)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func receiptFromAttributes(attrs map[string]string) (*ReceiptRow, error) {
	seq, err := strconv.ParseUint(attrs["sequence"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("audit: receipt sequence: %w", err)
	}
	productID, err := strconv.ParseUint(attrs["productId"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("audit: receipt product: %w", err)
	}
	return &ReceiptRow{
		Sequence:       seq,
		ProductID:      productID,
		Buyer:          attrs["buyer"],
		Seller:         attrs["seller"],
		Promoter:       attrs["promoter"],
		PricePaid:      attrs["pricePaid"],
		PlatformFee:    attrs["platformFee"],
		SellerAmount:   attrs["sellerAmount"],
		PromoterAmount: attrs["promoterAmount"],
		Change:         attrs["change"],
	}, nil
}
