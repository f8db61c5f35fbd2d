package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/miradorstack/patient-dashboard/internal/utils"
)

// ErrNotLoaded is returned by Loader.Handle before Load has succeeded.
var ErrNotLoaded = errors.New("dataset not loaded")

// Loader reads the patient file once and hands out the same Handle afterwards.
type Loader struct {
	path   string
	logger *slog.Logger

	once   sync.Once
	done   atomic.Bool
	handle *Handle
	err    error
}

// NewLoader constructs a Loader for path; nothing is read until Load.
func NewLoader(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{path: path, logger: logger}
}

// Load reads and validates the file on first use. Later calls return the memoized result,
// including a memoized failure.
func (l *Loader) Load() (*Handle, error) {
	l.once.Do(func() {
		defer l.done.Store(true)
		start := time.Now()
		l.handle, l.err = ReadFile(l.path)
		if l.err != nil {
			l.err = utils.NewAppError("dataset.load", "cannot load patient data", l.err)
			return
		}
		l.logger.Info("dataset loaded",
			slog.String("path", l.path),
			slog.Int("rows", l.handle.Len()),
			slog.Int("columns", len(l.handle.Columns())),
			slog.Bool("billing", l.handle.HasColumn(ColBillingAmount)),
			slog.Duration("elapsed", time.Since(start)),
		)
		if bad := l.handle.unparseableDates(); bad > 0 {
			l.logger.Warn("admission dates could not be parsed; rows never match a date range", slog.Int("rows", bad))
		}
	})
	return l.handle, l.err
}

// Handle returns the loaded dataset without triggering a read.
func (l *Loader) Handle() (*Handle, error) {
	if !l.done.Load() {
		return nil, ErrNotLoaded
	}
	return l.handle, l.err
}

// Path is the configured source path.
func (l *Loader) Path() string {
	return l.path
}

// ReadFile loads path as XLSX when it has an .xlsx extension and as CSV otherwise.
func ReadFile(path string) (*Handle, error) {
	if path == "" {
		return nil, fmt.Errorf("dataset path is empty")
	}
	var (
		records [][]string
		err     error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		records, err = readXLSX(path)
	} else {
		records, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	return FromRecords(records, path)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReaderSize(f, 64*1024))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", path, err)
	}
	return records, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: workbook has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheets[0], path, err)
	}
	return rows, nil
}

func (h *Handle) unparseableDates() int {
	bad := 0
	for _, raw := range Text(h.frame, ColAdmissionDate) {
		if _, err := utils.ParseDate(raw); err != nil {
			bad++
		}
	}
	return bad
}
