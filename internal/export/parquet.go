// Package export encodes executed result sets to parquet and uploads them
// to the object store, so a query's output can be handed off as a file.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/runsql/runsql/internal/storage"
)

type EncodeResult struct {
	Data     []byte
	RowCount int64
}

type resultRow struct {
	StatementID string `parquet:"statement_id"`
	RowIndex    int64  `parquet:"row_index"`
	RecordJSON  string `parquet:"record_json"`
}

// Encode flattens each row into a column-name → value JSON record. The
// envelope schema is fixed so arbitrary result shapes round-trip without
// per-query parquet schemas.
func Encode(statementID string, columns []string, rows [][]any) (EncodeResult, error) {
	if len(columns) == 0 {
		return EncodeResult{}, fmt.Errorf("columns are required")
	}

	encoded := make([]resultRow, 0, len(rows))
	for index, row := range rows {
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		payload, err := json.Marshal(record)
		if err != nil {
			return EncodeResult{}, fmt.Errorf("encode row %d: %w", index, err)
		}
		encoded = append(encoded, resultRow{
			StatementID: statementID,
			RowIndex:    int64(index),
			RecordJSON:  string(payload),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[resultRow](buf)
	if len(encoded) > 0 {
		if _, err := writer.Write(encoded); err != nil {
			return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{Data: buf.Bytes(), RowCount: int64(len(encoded))}, nil
}

// Exporter uploads encoded result sets under results/<date>/<key>.
type Exporter struct {
	Store storage.ObjectStore
}

func (e *Exporter) Upload(ctx context.Context, key, statementID string, columns []string, rows [][]any) (storage.ObjectInfo, error) {
	if e == nil || e.Store == nil {
		return storage.ObjectInfo{}, fmt.Errorf("object store is required")
	}
	encoded, err := Encode(statementID, columns, rows)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := e.Store.Put(ctx, BuildResultKey(key, time.Now()), bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
	})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload result set: %w", err)
	}
	return info, nil
}

// BuildResultKey places exports under a date partition, mirroring how data
// files are usually laid out in the bucket.
func BuildResultKey(key string, at time.Time) string {
	ts := at.UTC()
	return fmt.Sprintf("results/date=%04d-%02d-%02d/%s", ts.Year(), ts.Month(), ts.Day(), key)
}
