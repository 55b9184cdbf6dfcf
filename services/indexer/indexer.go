package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"latchain/core/types"
	"latchain/crypto"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

var ErrUnknownDriver = errors.New("indexer: unknown driver")

// Indexer persists committed receipts into a relational store so history can
// be queried without replaying state.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the configured database and migrates the schema.
func Open(driver, dsn string, log *slog.Logger) (*Indexer, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return New(db, log)
}

// New wraps an existing connection.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{db: db, logger: log.With("component", "indexer")}, nil
}

// Close releases the underlying connection pool.
func (i *Indexer) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IndexReceipt stores receipt and its events. Indexing the same receipt twice
// is a no-op.
func (i *Indexer) IndexReceipt(ctx context.Context, receipt *types.Receipt) error {
	if receipt == nil {
		return nil
	}
	record, err := toRecord(receipt)
	if err != nil {
		return err
	}
	return i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ReceiptRecord{}).Where("id = ?", record.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("indexer: store receipt %s: %w", record.ID, err)
		}
		i.logger.Debug("receipt indexed", "receipt", record.ID, "sequence", record.Sequence, "events", len(record.Events))
		return nil
	})
}

// Query filters History. A zero Participant matches everyone; Before pages
// backwards from a sequence number.
type Query struct {
	Participant crypto.Address
	Operation   string
	Before      uint64
	Limit       int
}

// History returns receipts newest first. A participant matches receipts it
// signed and receipts whose events name it.
func (i *Indexer) History(ctx context.Context, q Query) ([]*types.Receipt, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	tx := i.db.WithContext(ctx).Model(&ReceiptRecord{})
	if !q.Participant.IsZero() {
		who := q.Participant.String()
		related := i.db.Model(&EventRecord{}).Select("receipt_id").Where("participant = ?", who)
		tx = tx.Where("caller = ? OR id IN (?)", who, related)
	}
	if op := strings.TrimSpace(q.Operation); op != "" {
		tx = tx.Where("operation = ?", op)
	}
	if q.Before > 0 {
		tx = tx.Where("sequence < ?", q.Before)
	}
	var records []ReceiptRecord
	err := tx.Preload("Events", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Order("sequence DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: history: %w", err)
	}
	out := make([]*types.Receipt, 0, len(records))
	for idx := range records {
		receipt, err := fromRecord(&records[idx])
		if err != nil {
			return nil, err
		}
		out = append(out, receipt)
	}
	return out, nil
}

// Count reports how many receipts have been indexed.
func (i *Indexer) Count(ctx context.Context) (int64, error) {
	var count int64
	err := i.db.WithContext(ctx).Model(&ReceiptRecord{}).Count(&count).Error
	return count, err
}

func toRecord(receipt *types.Receipt) (*ReceiptRecord, error) {
	record := &ReceiptRecord{
		ID:        receipt.ID,
		Sequence:  receipt.Sequence,
		Operation: receipt.Operation,
		Caller:    receipt.Caller.String(),
		Nonce:     receipt.Nonce,
		Amount:    receipt.Amount,
		Reward:    receipt.Reward,
		StateRoot: receipt.StateRoot,
		Timestamp: receipt.Timestamp,
		Events:    make([]EventRecord, 0, len(receipt.Events)),
	}
	for pos, evt := range receipt.Events {
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			return nil, fmt.Errorf("indexer: encode event attributes: %w", err)
		}
		record.Events = append(record.Events, EventRecord{
			ReceiptID:   receipt.ID,
			Sequence:    receipt.Sequence,
			Position:    pos,
			Type:        evt.Type,
			Participant: participantOf(evt),
			Attributes:  string(attrs),
			Timestamp:   receipt.Timestamp,
		})
	}
	return record, nil
}

func fromRecord(record *ReceiptRecord) (*types.Receipt, error) {
	caller, err := crypto.DecodeAddress(record.Caller)
	if err != nil {
		return nil, fmt.Errorf("indexer: receipt %s: %w", record.ID, err)
	}
	receipt := &types.Receipt{
		ID:        record.ID,
		Operation: record.Operation,
		Caller:    caller,
		Nonce:     record.Nonce,
		Amount:    record.Amount,
		Reward:    record.Reward,
		Sequence:  record.Sequence,
		StateRoot: record.StateRoot,
		Timestamp: record.Timestamp,
		Events:    make([]types.Event, 0, len(record.Events)),
	}
	if t, err := types.ParseInstructionType(record.Operation); err == nil {
		receipt.Type = t
	} else if record.Operation == "genesis" {
		receipt.Type = types.InstructionInitialize
	}
	for _, evt := range record.Events {
		attrs := map[string]string{}
		if evt.Attributes != "" {
			if err := json.Unmarshal([]byte(evt.Attributes), &attrs); err != nil {
				return nil, fmt.Errorf("indexer: decode event attributes: %w", err)
			}
		}
		receipt.Events = append(receipt.Events, types.Event{Type: evt.Type, Attributes: attrs})
	}
	return receipt, nil
}

// participantOf picks the account an event concerns. Token credits name the
// recipient.
func participantOf(evt types.Event) string {
	if who := evt.Attributes["participant"]; who != "" {
		return who
	}
	return evt.Attributes["to"]
}
