package indexer

import (
	"time"

	"gorm.io/gorm"
)

// ReceiptRecord is one committed instruction, keyed by receipt identifier.
type ReceiptRecord struct {
	ID        string `gorm:"primaryKey;size:80"`
	Sequence  uint64 `gorm:"uniqueIndex"`
	Operation string `gorm:"index;size:32"`
	Caller    string `gorm:"index;size:64"`
	Nonce     uint64
	Amount    uint64
	Reward    uint64
	StateRoot string        `gorm:"size:66"`
	Timestamp int64         `gorm:"index"`
	Events    []EventRecord `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}

// EventRecord flattens one receipt event. Attributes hold the JSON encoded
// attribute map.
type EventRecord struct {
	ID          uint   `gorm:"primaryKey"`
	ReceiptID   string `gorm:"index;size:80"`
	Sequence    uint64 `gorm:"index"`
	Position    int
	Type        string `gorm:"index;size:64"`
	Participant string `gorm:"index;size:64"`
	Attributes  string `gorm:"type:text"`
	Timestamp   int64
}

// AutoMigrate performs all schema migrations for the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ReceiptRecord{},
		&EventRecord{},
	)
}
