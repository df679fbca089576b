package command

import (
	"github.com/yamitzky/xlrd-go/v2/xlrd"

	yaml "gopkg.in/yaml.v2"
)

const (
	SummaryDescription = "Prints a YAML summary of a workbook"
	SummaryHelp        = SummaryDescription + "\n\n" +
		"Opens the workbook and reports its BIFF version, encoding, date\n" +
		"mode, defined names and, for every sheet, its visibility and size."
)

// Summary represents the `summary` command of xlrdtool.
type Summary struct {
	input
	FormattingInfo bool   `short:"f" long:"formatting-info" description:"Read formatting records; blank cells then count towards sheet sizes"`
	Encoding       string `short:"e" long:"encoding" description:"Override the encoding of files without a usable code page"`
	Names          bool   `short:"n" long:"names" description:"Include defined names"`
}

type workbookSummary struct {
	File        string         `yaml:"file"`
	BiffVersion string         `yaml:"biff_version"`
	Encoding    string         `yaml:"encoding"`
	Datemode    int            `yaml:"datemode"`
	UserName    string         `yaml:"user_name,omitempty"`
	Formats     int            `yaml:"formats,omitempty"`
	XFs         int            `yaml:"xfs,omitempty"`
	Sheets      []sheetSummary `yaml:"sheets"`
	Names       []nameSummary  `yaml:"names,omitempty"`
}

type sheetSummary struct {
	Name         string `yaml:"name"`
	Visibility   string `yaml:"visibility"`
	Rows         int    `yaml:"rows"`
	Cols         int    `yaml:"cols"`
	MergedRanges int    `yaml:"merged_ranges,omitempty"`
}

type nameSummary struct {
	Name    string `yaml:"name"`
	Scope   int    `yaml:"scope"`
	Value   string `yaml:"value,omitempty"`
	Builtin bool   `yaml:"builtin,omitempty"`
	Macro   bool   `yaml:"macro,omitempty"`
}

var visibilities = []string{"visible", "hidden", "very hidden"}

// Execute opens the given file and prints its summary, it honors the
// go-flags.Commander interface.
func (c *Summary) Execute(args []string) error {
	opts, err := c.openOptions()
	if err != nil {
		return err
	}
	opts.FormattingInfo = c.FormattingInfo
	opts.EncodingOverride = c.Encoding

	book, err := xlrd.OpenWorkbook(c.Args.File, opts)
	if err != nil {
		return err
	}
	defer book.ReleaseResources()

	s, err := c.summarize(book)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	_, err = c.stdout().Write(out)
	return err
}

func (c *Summary) summarize(book *xlrd.Book) (*workbookSummary, error) {
	s := &workbookSummary{
		File:        c.Args.File,
		BiffVersion: xlrd.BiffTextFromNum(book.BiffVersion),
		Encoding:    book.Encoding,
		Datemode:    book.Datemode,
		UserName:    book.UserName,
	}
	if c.FormattingInfo {
		s.Formats = len(book.FormatMap)
		s.XFs = len(book.XFList)
	}

	sheets, err := book.Sheets()
	if err != nil {
		return nil, err
	}
	vis := book.SheetVisibility()
	for i, sh := range sheets {
		v := "unknown"
		if i < len(vis) && vis[i] >= 0 && vis[i] < len(visibilities) {
			v = visibilities[vis[i]]
		}
		s.Sheets = append(s.Sheets, sheetSummary{
			Name:         sh.Name,
			Visibility:   v,
			Rows:         sh.NRows,
			Cols:         sh.NCols,
			MergedRanges: len(sh.MergedCells),
		})
	}

	if !c.Names {
		return s, nil
	}
	for _, n := range book.NameObjList {
		ns := nameSummary{
			Name:    n.Name,
			Scope:   n.Scope,
			Builtin: n.Builtin != 0,
			Macro:   n.Macro != 0,
		}
		if n.Result != nil {
			ns.Value = n.Result.Text
		}
		s.Names = append(s.Names, ns)
	}
	return s, nil
}
