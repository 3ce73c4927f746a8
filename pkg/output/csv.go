// Package output writes crawl results: the CSV file and a terminal preview.
package output

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/archive-crawler/pkg/record"
)

// bom is the UTF-8 byte order mark. Spreadsheet tools need it to detect UTF-8.
const bom = "\ufeff"

var (
	// ErrNoRecords is returned by WriteCSV when there is nothing to write.
	// The target file is left untouched.
	ErrNoRecords = errors.New("no records to write")

	// ErrHeaderMismatch is returned by ReadCSV when the header is not the record schema.
	ErrHeaderMismatch = errors.New("csv header does not match record fields")
)

// WriteCSV writes records to path as UTF-8 CSV with a BOM and a
// Title,Time,Link header. The file is replaced in one step.
func WriteCSV(path string, records []record.Record) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := Encode(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Encode writes the BOM, header and rows to w.
func Encode(w io.Writer, records []record.Record) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(bom); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(bw)
	if err := cw.Write(record.Header()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range records {
		if err := cw.Write(r.Values()); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return bw.Flush()
}

// ReadCSV reads a file written by WriteCSV.
func ReadCSV(path string) ([]record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f)
}

// Decode parses CSV produced by Encode. A leading BOM is optional.
func Decode(r io.Reader) ([]record.Record, error) {
	cr := csv.NewReader(stripBOM(r))
	cr.FieldsPerRecord = len(record.Fields)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(record.Header(), ",") {
		return nil, fmt.Errorf("%w: got %v", ErrHeaderMismatch, header)
	}

	var records []record.Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(records)+1, err)
		}
		records = append(records, record.FromValues(row))
	}
	return records, nil
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	rn, _, err := br.ReadRune()
	if err != nil {
		return br
	}
	if rn != '\ufeff' {
		br.UnreadRune()
	}
	return br
}
