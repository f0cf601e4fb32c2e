// Package export writes execution results to parquet files. Result rows are
// heterogeneous, so each row is stored as a JSON object keyed by column
// name next to its ordinal position; any parquet reader can unnest the
// payload without knowing the query's shape up front.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/nlquery/nlquery/internal/execute"
)

type parquetRow struct {
	RowIndex    int64  `parquet:"row_index"`
	PayloadJSON string `parquet:"payload_json"`
}

// EncodeParquet serializes a result into parquet bytes. Empty results
// produce a valid file with zero rows.
func EncodeParquet(result *execute.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("result is required")
	}

	rows := make([]parquetRow, 0, len(result.Rows))
	for index, row := range result.Rows {
		payload := make(map[string]any, len(result.Columns))
		for i, column := range result.Columns {
			if i < len(row) {
				payload[column] = row[i]
			}
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode row %d: %w", index, err)
		}
		rows = append(rows, parquetRow{
			RowIndex:    int64(index),
			PayloadJSON: string(encoded),
		})
	}

	buf := bytes.NewBuffer(nil)
	// Column order travels as file metadata so readers can reconstruct the
	// original result shape from the JSON payloads.
	writer := parquet.NewGenericWriter[parquetRow](buf,
		parquet.KeyValueMetadata("nlquery.columns", strings.Join(result.Columns, ",")))
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteParquetFile encodes a result and writes it to path.
func WriteParquetFile(path string, result *execute.Result) error {
	data, err := EncodeParquet(result)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write parquet file %q: %w", path, err)
	}
	return nil
}
