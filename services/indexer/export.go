package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const exportBatchSize = 1000

type parquetRow struct {
	ReceiptID   string `parquet:"name=receipt_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sequence    int64  `parquet:"name=sequence, type=INT64"`
	Operation   string `parquet:"name=operation, type=BYTE_ARRAY, convertedtype=UTF8"`
	Caller      string `parquet:"name=caller, type=BYTE_ARRAY, convertedtype=UTF8"`
	Nonce       int64  `parquet:"name=nonce, type=INT64"`
	Amount      int64  `parquet:"name=amount, type=INT64"`
	Reward      int64  `parquet:"name=reward, type=INT64"`
	StateRoot   string `parquet:"name=state_root, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp   string `parquet:"name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8"`
	EventCount  int32  `parquet:"name=event_count, type=INT32"`
	Participant string `parquet:"name=participant, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every indexed receipt, oldest first, to a timestamped
// parquet file under dir and returns its path.
func (i *Indexer) ExportParquet(ctx context.Context, dir string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("indexer: export directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("indexer: create export dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("receipts-%s.parquet", now.UTC().Format("20060102T150405Z")))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return "", fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	if err := i.writeRows(ctx, pw); err != nil {
		pw.WriteStop()
		file.Close()
		return "", err
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return "", fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("indexer: close parquet file: %w", err)
	}
	i.logger.Info("receipts exported", "path", path)
	return path, nil
}

// writeRows pages through receipts by sequence.
func (i *Indexer) writeRows(ctx context.Context, pw *writer.ParquetWriter) error {
	var last uint64
	first := true
	for {
		var batch []ReceiptRecord
		tx := i.db.WithContext(ctx).Preload("Events").Order("sequence ASC").Limit(exportBatchSize)
		if !first {
			tx = tx.Where("sequence > ?", last)
		}
		if err := tx.Find(&batch).Error; err != nil {
			return fmt.Errorf("indexer: export query: %w", err)
		}
		for idx := range batch {
			if err := pw.Write(toParquetRow(&batch[idx])); err != nil {
				return fmt.Errorf("indexer: parquet write: %w", err)
			}
		}
		if len(batch) < exportBatchSize {
			return nil
		}
		last = batch[len(batch)-1].Sequence
		first = false
	}
}

func toParquetRow(record *ReceiptRecord) *parquetRow {
	row := &parquetRow{
		ReceiptID:  record.ID,
		Sequence:   int64(record.Sequence),
		Operation:  record.Operation,
		Caller:     record.Caller,
		Nonce:      int64(record.Nonce),
		Amount:     int64(record.Amount),
		Reward:     int64(record.Reward),
		StateRoot:  record.StateRoot,
		Timestamp:  time.Unix(record.Timestamp, 0).UTC().Format(time.RFC3339),
		EventCount: int32(len(record.Events)),
	}
	for _, evt := range record.Events {
		if evt.Participant != "" {
			row.Participant = evt.Participant
			break
		}
	}
	return row
}
