package lodes

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// Columns of an OD file in published order.
var Columns = []string{
	"w_geocode", "h_geocode",
	"S000", "SA01", "SA02", "SA03", "SE01", "SE02", "SE03", "SI01", "SI02", "SI03",
	"createdate",
}

func isTextColumn(name string) bool {
	return name == "w_geocode" || name == "h_geocode" || name == "createdate"
}

func parquetSchema() string {
	fields := make([]map[string]string, 0, len(Columns))
	for _, c := range Columns {
		tag := fmt.Sprintf("name=%s, type=INT64, repetitiontype=REQUIRED", c)
		if isTextColumn(c) {
			tag = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED", c)
		}
		fields = append(fields, map[string]string{"Tag": tag})
	}
	b, _ := json.Marshal(map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	})
	return string(b)
}

// ConvertToParquet reads an OD CSV from r and writes Snappy-compressed Parquet
// to w. Geocodes stay strings so leading zeros survive. It returns the number
// of rows written.
func ConvertToParquet(r io.Reader, w io.Writer) (int64, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("read od header: %w", err)
	}
	idx := make([]int, len(Columns))
	for i, c := range Columns {
		idx[i] = -1
		for j, h := range header {
			if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == c {
				idx[i] = j
			}
		}
		if idx[i] < 0 {
			return 0, fmt.Errorf("od header is missing column %s", c)
		}
	}

	pfw := writerfile.NewWriterFile(w)
	pw, err := writer.NewJSONWriter(parquetSchema(), pfw, 4)
	if err != nil {
		return 0, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	var rows int64
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = pw.WriteStop()
			return rows, fmt.Errorf("read od row %d: %w", rows+1, err)
		}

		row := make(map[string]any, len(Columns))
		for i, c := range Columns {
			v := strings.TrimSpace(rec[idx[i]])
			if isTextColumn(c) {
				row[c] = v
				continue
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				_ = pw.WriteStop()
				return rows, fmt.Errorf("od row %d column %s: %w", rows+1, c, err)
			}
			row[c] = n
		}
		line, err := json.Marshal(row)
		if err != nil {
			_ = pw.WriteStop()
			return rows, err
		}
		if err := pw.Write(string(line)); err != nil {
			_ = pw.WriteStop()
			return rows, err
		}
		rows++
	}
	if err := pw.WriteStop(); err != nil {
		return rows, err
	}
	return rows, pfw.Close()
}
