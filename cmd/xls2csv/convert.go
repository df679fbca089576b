package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/yamitzky/xlrd-go/v2/xlrd"
)

type options struct {
	allSheets                bool
	sheetID                  int
	sheetName                string
	delimiter                rune
	lineTerminator           string
	dateFormat               string
	floatFormat              string
	encoding                 encoding.Encoding // nil writes UTF-8 as is
	ignoreEmpty              bool
	escape                   bool
	sheetDelimiter           string
	quoting                  quotingMode
	includeSheetPattern      []*regexp.Regexp
	excludeSheetPattern      []*regexp.Regexp
	mergeCells               bool
	ignoreWorkbookCorruption bool
	jobs                     int
}

// converter turns workbooks into CSV according to opts.
type converter struct {
	opts   options
	log    *logrus.Logger
	stdout io.Writer
}

func (c *converter) convert(input, output string, stdin io.Reader) error {
	if input == "-" {
		content, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %v", err)
		}
		return c.convertFile("-", content, output)
	}

	info, err := os.Stat(input)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return c.convertDir(input, output)
	}
	return c.convertFile(input, nil, output)
}

// convertDir converts every xls file directly inside inputDir, at most
// opts.jobs at a time. The first failure stops the remaining files.
func (c *converter) convertDir(inputDir, outputDir string) error {
	if outputDir == "" {
		outputDir = inputDir
	}
	if err := ensureDir(outputDir); err != nil {
		return err
	}

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return err
	}

	var inputs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(inputDir, entry.Name())
		format, err := xlrd.InspectFormat(path, nil)
		if err != nil {
			return err
		}
		if format != "xls" {
			c.log.WithField("file", path).Debug("skipping non-xls file")
			continue
		}
		inputs = append(inputs, path)
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no xls files found in %s", inputDir)
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(c.opts.jobs)
	for _, path := range inputs {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out := filepath.Join(outputDir, changeExt(filepath.Base(path), ".csv"))
			if err := c.convertFile(path, nil, out); err != nil {
				return fmt.Errorf("%s: %v", path, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *converter) convertFile(inputPath string, content []byte, outputPath string) error {
	book, err := xlrd.OpenWorkbook(inputPath, &xlrd.OpenWorkbookOptions{
		Logger:                   c.log.WithField("file", inputPath),
		FileContents:             content,
		FormattingInfo:           true,
		OnDemand:                 true,
		IgnoreWorkbookCorruption: c.opts.ignoreWorkbookCorruption,
	})
	if err != nil {
		return err
	}
	defer book.ReleaseResources()

	sheets, err := c.selectSheets(book)
	if err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{
		"file":   inputPath,
		"sheets": len(sheets),
	}).Info("converting workbook")

	if outputPath == "" {
		return c.writeTo(c.stdout, book, sheets)
	}

	if c.opts.sheetID == 0 {
		if err := ensureDir(outputPath); err != nil {
			return fmt.Errorf("outfile must be a directory when -s 0 is specified")
		}
	}
	if info, err := os.Stat(outputPath); err == nil && info.IsDir() {
		base := changeExt(filepath.Base(inputPath), "")
		for _, sheet := range sheets {
			name := fmt.Sprintf("%s-%s.csv", base, sanitizeFilename(sheet.Name))
			if err := c.writeFile(filepath.Join(outputPath, name), book, []*xlrd.Sheet{sheet}); err != nil {
				return err
			}
		}
		return nil
	}
	return c.writeFile(outputPath, book, sheets)
}

// selectSheets picks the sheets to convert: by name, all sheets that
// pass the include and exclude patterns, by 1-based number, or the
// first sheet.
func (c *converter) selectSheets(book *xlrd.Book) ([]*xlrd.Sheet, error) {
	var indexes []int
	switch {
	case c.opts.sheetName != "":
		sh, err := book.SheetByName(c.opts.sheetName)
		if err != nil {
			return nil, err
		}
		return []*xlrd.Sheet{sh}, nil
	case c.opts.allSheets:
		for i, name := range book.SheetNames() {
			if matchPatterns(name, c.opts.includeSheetPattern, c.opts.excludeSheetPattern) {
				indexes = append(indexes, i)
			}
		}
		if len(indexes) == 0 {
			return nil, fmt.Errorf("no sheets matched selection")
		}
	case c.opts.sheetID > 0:
		if c.opts.sheetID > book.NSheets {
			return nil, fmt.Errorf("sheet index %d out of range", c.opts.sheetID)
		}
		indexes = []int{c.opts.sheetID - 1}
	default:
		if book.NSheets == 0 {
			return nil, fmt.Errorf("no sheets found")
		}
		indexes = []int{0}
	}

	sheets := make([]*xlrd.Sheet, 0, len(indexes))
	for _, i := range indexes {
		sh, err := book.SheetByIndex(i)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, sh)
	}
	return sheets, nil
}

func (c *converter) writeFile(path string, book *xlrd.Book, sheets []*xlrd.Sheet) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.writeTo(f, book, sheets); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *converter) writeTo(w io.Writer, book *xlrd.Book, sheets []*xlrd.Sheet) error {
	var tw io.WriteCloser
	if c.opts.encoding != nil {
		tw = transform.NewWriter(w, c.opts.encoding.NewEncoder())
		w = tw
	}
	bw := bufio.NewWriter(w)
	if err := c.writeSheets(bw, book, sheets); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if tw != nil {
		return tw.Close()
	}
	return nil
}

func (c *converter) writeSheets(w io.Writer, book *xlrd.Book, sheets []*xlrd.Sheet) error {
	cw := &csvWriter{
		w:              w,
		delimiter:      c.opts.delimiter,
		lineTerminator: c.opts.lineTerminator,
		quoting:        c.opts.quoting,
	}
	for i, sheet := range sheets {
		if i > 0 && c.opts.sheetDelimiter != "" {
			if _, err := io.WriteString(w, c.opts.sheetDelimiter+c.opts.lineTerminator); err != nil {
				return err
			}
		}
		if err := c.writeSheet(cw, book, sheet); err != nil {
			return err
		}
	}
	return nil
}

func (c *converter) writeSheet(cw *csvWriter, book *xlrd.Book, sheet *xlrd.Sheet) error {
	fields := make([]field, sheet.NCols)
	for rowx := 0; rowx < sheet.NRows; rowx++ {
		empty := true
		for colx := range fields {
			fields[colx] = c.formatCell(book, sheet, rowx, colx)
			if fields[colx].text != "" {
				empty = false
			}
		}
		if c.opts.ignoreEmpty && empty {
			continue
		}
		if err := cw.writeRow(fields); err != nil {
			return err
		}
	}
	return nil
}

func matchPatterns(name string, include, exclude []*regexp.Regexp) bool {
	if len(include) > 0 && !anyMatch(include, name) {
		return false
	}
	return !anyMatch(exclude, name)
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func compilePatterns(values []string) ([]*regexp.Regexp, error) {
	var patterns []*regexp.Regexp
	for _, value := range values {
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("output path is not a directory: %s", path)
	}
	return nil
}

func changeExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

func sanitizeFilename(name string) string {
	clean := strings.TrimSpace(strings.NewReplacer("/", "_", `\`, "_").Replace(name))
	if clean == "" {
		return "sheet"
	}
	return clean
}
