// Package xlsx writes every table as a worksheet of one workbook. Tables are
// staged by WriteTable and the workbook is rendered and saved on Close.
package xlsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"gdqvods/internal/storage"
	"gdqvods/internal/table"
)

// MaxSheetName is the worksheet name limit imposed by Excel.
const MaxSheetName = 31

const defaultSheet = "Sheet1"

func init() {
	storage.Register("xlsx", func(_ context.Context, cfg storage.Config) (storage.TableWriter, error) {
		return New(filepath.Join(cfg.Dir, cfg.Workbook), cfg.Log)
	})
}

// Writer accumulates tables in memory and renders them on Close.
type Writer struct {
	path   string
	file   *excelize.File
	sheets map[string]string // table name -> sheet name
	tables map[string]*table.Table
	order  []string
	log    logrus.FieldLogger
}

// New prepares a workbook to be saved at path.
func New(path string, log logrus.FieldLogger) (*Writer, error) {
	if strings.TrimSpace(path) == "" || filepath.Ext(path) == "" {
		return nil, fmt.Errorf("xlsx: workbook path %q must name a file", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("xlsx: mkdir: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{path: path, sheets: map[string]string{}, tables: map[string]*table.Table{}, log: log}, nil
}

// SheetName maps a table name onto a valid, unique worksheet name.
func (w *Writer) SheetName(tableName string) string {
	if s, ok := w.sheets[tableName]; ok {
		return s
	}
	base := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, tableName)
	base = truncate(strings.Trim(base, "'"), MaxSheetName)
	if base == "" {
		base = "table"
	}
	name := base
	for i := 2; w.taken(name); i++ {
		suffix := fmt.Sprintf("~%d", i)
		name = truncate(base, MaxSheetName-len(suffix)) + suffix
	}
	w.sheets[tableName] = name
	return name
}

func (w *Writer) taken(sheet string) bool {
	for _, s := range w.sheets {
		if strings.EqualFold(s, sheet) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

// WriteTable stages t as a worksheet, replacing an earlier table with the
// same name.
func (w *Writer) WriteTable(ctx context.Context, t *table.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sheet := w.SheetName(t.Name)
	if _, ok := w.tables[sheet]; !ok {
		w.order = append(w.order, sheet)
	}
	w.tables[sheet] = t
	w.log.WithFields(logrus.Fields{"table": t.Name, "sheet": sheet, "rows": t.Len()}).Debug("xlsx: sheet staged")
	return nil
}

func (w *Writer) writeSheet(sheet string, t *table.Table) error {
	if _, err := w.file.NewSheet(sheet); err != nil {
		return fmt.Errorf("xlsx: new sheet %s: %w", sheet, err)
	}
	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := w.setRow(sheet, 1, header); err != nil {
		return err
	}
	for i, row := range t.Values() {
		if err := w.setRow(sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) setRow(sheet string, row int, vals []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	if err := w.file.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("xlsx: %s row %d: %w", sheet, row, err)
	}
	return nil
}

// Close renders the staged tables in write order and saves the workbook.
func (w *Writer) Close() error {
	f := excelize.NewFile()
	w.file = f
	defer func() { _ = f.Close() }()
	if len(w.order) == 0 {
		return nil
	}
	for _, sheet := range w.order {
		if err := w.writeSheet(sheet, w.tables[sheet]); err != nil {
			return err
		}
	}
	if _, ok := w.tables[defaultSheet]; !ok {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("xlsx: delete %s: %w", defaultSheet, err)
		}
	}
	f.SetActiveSheet(0)
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("xlsx: save %s: %w", w.path, err)
	}
	w.log.WithFields(logrus.Fields{"path": w.path, "sheets": len(w.order)}).Info("xlsx: workbook saved")
	return nil
}
