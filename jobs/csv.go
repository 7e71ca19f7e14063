package jobs

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teranos/strata/config"
	"github.com/teranos/strata/errors"
)

// Exports open with a byte order mark so spreadsheet tools detect the
// encoding of Korean field values.
const utf8BOM = "\xef\xbb\xbf"

// fieldNames returns the union of keys across all records, sorted.
func fieldNames(records []map[string]string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, record := range records {
		for key := range record {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names
}

// writeCSV writes records under dir with a header derived from the
// records themselves.
func writeCSV(dir, filename string, records []map[string]string) (string, error) {
	return writeCSVOrdered(dir, filename, fieldNames(records), records)
}

// writeCSVOrdered writes records under dir with the given column order.
// An empty batch produces a BOM-only file.
func writeCSVOrdered(dir, filename string, fields []string, records []map[string]string) (string, error) {
	if err := os.MkdirAll(dir, config.DefaultDirPermissions); err != nil {
		return "", errors.Wrap(err, "failed to create export directory")
	}
	path := filepath.Join(dir, filename)

	file, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to create CSV file")
	}
	defer file.Close()

	if _, err := file.WriteString(utf8BOM); err != nil {
		return "", errors.Wrap(err, "failed to write CSV header")
	}
	if len(records) == 0 {
		return path, nil
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(fields); err != nil {
		return "", errors.Wrap(err, "failed to write CSV header")
	}

	row := make([]string, len(fields))
	for _, record := range records {
		for i, field := range fields {
			row[i] = record[field]
		}
		if err := writer.Write(row); err != nil {
			return "", errors.Wrap(err, "failed to write CSV row")
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", errors.Wrap(err, "failed to flush CSV")
	}
	return path, nil
}

// readCSV reads an exported CSV back as a header plus one map per row,
// tolerating the BOM and ragged rows.
func readCSV(path string) ([]string, []map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open input file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read CSV header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	var records []map[string]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to read CSV row")
		}
		record := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				record[name] = row[i]
			}
		}
		records = append(records, record)
	}
	return header, records, nil
}
