// Package serializer writes readings in the long delimited format read by
// the monitoring dashboard:
//
//	id_local;data_hora_ms;id_sensor;valor
//	1;1700000001000;1;30.42
package serializer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/speedwagon-io/sensorsim/internal/model"
	"github.com/speedwagon-io/sensorsim/internal/walk"
)

const DefaultDelimiter = ';'

var Header = []string{"id_local", "data_hora_ms", "id_sensor", "valor"}

var ErrInvalidDelimiter = errors.New("invalid delimiter")

// ParseDelimiter accepts a single character that cannot appear in a number.
func ParseDelimiter(s string) (rune, error) {
	if s == "" {
		return DefaultDelimiter, nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) {
		return 0, fmt.Errorf("%w: %q must be a single character", ErrInvalidDelimiter, s)
	}
	if err := checkDelimiter(r); err != nil {
		return 0, err
	}
	return r, nil
}

func checkDelimiter(r rune) error {
	switch {
	case r == utf8.RuneError, r == '\r', r == '\n', r == '"':
		return fmt.Errorf("%w: %q", ErrInvalidDelimiter, r)
	case r == '.', r == '-', r >= '0' && r <= '9':
		return fmt.Errorf("%w: %q clashes with numeric values", ErrInvalidDelimiter, r)
	}
	return nil
}

type Encoder struct {
	w    *csv.Writer
	rows int
}

func NewEncoder(w io.Writer, delim rune) (*Encoder, error) {
	if err := checkDelimiter(delim); err != nil {
		return nil, err
	}
	cw := csv.NewWriter(w)
	cw.Comma = delim
	return &Encoder{w: cw}, nil
}

func (e *Encoder) WriteHeader() error {
	if err := e.w.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

func (e *Encoder) WriteReadings(readings []model.Reading) error {
	for _, r := range readings {
		record := []string{
			strconv.Itoa(r.LocalID),
			strconv.FormatInt(r.TimestampMs, 10),
			strconv.Itoa(r.SensorID),
			strconv.FormatFloat(r.Value, 'f', walk.Precision, 64),
		}
		if err := e.w.Write(record); err != nil {
			return fmt.Errorf("failed to write reading %d/%d: %w", r.LocalID, r.SensorID, err)
		}
		e.rows++
	}
	return nil
}

func (e *Encoder) Flush() error {
	e.w.Flush()
	if err := e.w.Error(); err != nil {
		return fmt.Errorf("failed to flush readings: %w", err)
	}
	return nil
}

// Rows counts data rows written so far, header excluded.
func (e *Encoder) Rows() int {
	return e.rows
}

// Write emits the header followed by every reading.
func Write(w io.Writer, readings []model.Reading, delim rune) error {
	enc, err := NewEncoder(w, delim)
	if err != nil {
		return err
	}
	if err := enc.WriteHeader(); err != nil {
		return err
	}
	if err := enc.WriteReadings(readings); err != nil {
		return err
	}
	return enc.Flush()
}

// WriteFile replaces path with the serialized readings. The file appears
// only once it is complete.
func WriteFile(path string, readings []model.Reading, delim rune) (err error) {
	f, err := CreateAtomic(path)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Abort()
		}
	}()

	if err = Write(f, readings, delim); err != nil {
		return err
	}
	return f.Commit()
}

// Decode reads a file produced by Write back into readings.
func Decode(r io.Reader, delim rune) ([]model.Reading, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = len(Header)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing header")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, h := range Header {
		if header[i] != h {
			return nil, fmt.Errorf("unexpected header column %d: %q, want %q", i+1, header[i], h)
		}
	}

	var readings []model.Reading
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(readings)+2, err)
		}

		r, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(readings)+2, err)
		}
		readings = append(readings, r)
	}

	return readings, nil
}

func parseRecord(record []string) (model.Reading, error) {
	localID, err := strconv.Atoi(record[0])
	if err != nil {
		return model.Reading{}, fmt.Errorf("invalid id_local %q", record[0])
	}
	ts, err := strconv.ParseInt(record[1], 10, 64)
	if err != nil {
		return model.Reading{}, fmt.Errorf("invalid data_hora_ms %q", record[1])
	}
	sensorID, err := strconv.Atoi(record[2])
	if err != nil {
		return model.Reading{}, fmt.Errorf("invalid id_sensor %q", record[2])
	}
	value, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		return model.Reading{}, fmt.Errorf("invalid valor %q", record[3])
	}

	return model.Reading{
		LocalID:     localID,
		TimestampMs: ts,
		SensorID:    sensorID,
		Value:       value,
	}, nil
}
