package audit

import (
	"time"

	"gorm.io/gorm"
)

// ReceiptRow mirrors a marketplace receipt. Amounts are decimal strings so
// values above 2^64 survive every driver.
type ReceiptRow struct {
	Sequence       uint64 `gorm:"primaryKey;autoIncrement:false"`
	ProductID      uint64 `gorm:"index"`
	Buyer          string `gorm:"size:64;index"`
	Seller         string `gorm:"size:64;index"`
	Promoter       string `gorm:"size:64;index"`
	PricePaid      string `gorm:"size:40"`
	PlatformFee    string `gorm:"size:40"`
	SellerAmount   string `gorm:"size:40"`
	PromoterAmount string `gorm:"size:40"`
	Change         string `gorm:"size:40"`
	RecordedAt     time.Time
}

// EventRow is one emitted event with its attributes as JSON.
type EventRow struct {
	ID         uint64 `gorm:"primaryKey"`
	Type       string `gorm:"size:64;index"`
	Attributes string `gorm:"type:text"`
	CreatedAt  time.Time
}

// AutoMigrate creates or updates the audit tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ReceiptRow{}, &EventRow{})
}
