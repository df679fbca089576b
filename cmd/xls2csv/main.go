package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

const name = "xls2csv"

var version = "dev"

// command holds the command line of xls2csv.
type command struct {
	Version                  bool     `short:"v" long:"version" description:"show program's version number and exit"`
	All                      bool     `short:"a" long:"all" description:"export all sheets"`
	OutputEncoding           string   `short:"c" long:"outputencoding" default:"utf-8" description:"encoding of output CSV"`
	Sheet                    int      `short:"s" long:"sheet" default:"-1" description:"sheet number to convert, 0 for all"`
	SheetName                string   `short:"n" long:"sheetname" description:"sheet name to convert"`
	Delimiter                string   `short:"d" long:"delimiter" default:"," description:"column delimiter in CSV, 'tab' or 'x09' for a tab"`
	LineTerminator           string   `short:"l" long:"lineterminator" description:"line terminator in CSV, '\\n' '\\r\\n' or '\\r' (default: os line separator)"`
	DateFormat               string   `short:"f" long:"dateformat" description:"override date/time format (ex. %Y/%m/%d)"`
	FloatFormat              string   `long:"floatformat" description:"override float format (ex. %.15f)"`
	IgnoreEmpty              bool     `short:"i" long:"ignoreempty" description:"skip empty lines"`
	Escape                   bool     `short:"e" long:"escape" description:"escape \\r\\n\\t characters"`
	SheetDelimiter           string   `short:"p" long:"sheetdelimiter" default:"--------" description:"sheet delimiter used to separate sheets, '' for none, 'x07' or '\\f' for form feed"`
	Quoting                  string   `short:"q" long:"quoting" default:"minimal" choice:"none" choice:"minimal" choice:"nonnumeric" choice:"all" description:"field quoting"`
	Hyperlinks               bool     `long:"hyperlinks" description:"include hyperlinks"`
	IncludeSheetPattern      []string `short:"I" long:"include_sheet_pattern" description:"only include sheets with names matching the pattern, with -a"`
	ExcludeSheetPattern      []string `short:"E" long:"exclude_sheet_pattern" description:"exclude sheets with names matching the pattern, with -a"`
	MergeCells               bool     `short:"m" long:"merge-cells" description:"repeat the value of a merged range in every cell"`
	IgnoreWorkbookCorruption bool     `long:"ignore-workbook-corruption" env:"XLS2CSV_IGNORE_CORRUPTION" description:"read workbooks whose streams share sectors"`
	Jobs                     int      `short:"j" long:"jobs" default:"4" description:"files converted at once when the input is a directory"`
	LogLevel                 string   `long:"log-level" env:"XLS2CSV_LOG_LEVEL" choice:"debug" choice:"info" choice:"warning" choice:"error" default:"warning" description:"logging level"`

	Args struct {
		Input  string `positional-arg-name:"xlsfile" description:"xls file path, or a directory; '-' reads STDIN"`
		Output string `positional-arg-name:"outfile" description:"output csv file path, or directory if -s 0 is specified"`
	} `positional-args:"yes"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var cmd command
	parser := flags.NewNamedParser(name, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = "[OPTIONS] xlsfile [outfile]"
	parser.LongDescription = "Converts the sheets of legacy Excel .xls workbooks to CSV.\n\n" +
		"Given a directory, every xls file in it is converted to a .csv file in\n" +
		"the output directory, or next to the input when none is given."
	if _, err := parser.AddGroup("Options", "", &cmd); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	if _, err := parser.ParseArgs(args); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprint(stdout, e.Message)
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	if cmd.Version {
		fmt.Fprintf(stdout, "%s %s\n", name, version)
		return 0
	}

	log := logrus.New()
	log.Out = stderr
	level, err := logrus.ParseLevel(cmd.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "cannot parse log level: %s\n", err)
		return 2
	}
	log.SetLevel(level)

	opts, err := cmd.options()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if cmd.Args.Input == "" {
		parser.WriteHelp(stderr)
		return 2
	}

	c := &converter{opts: opts, log: log, stdout: stdout}
	if err := c.convert(cmd.Args.Input, cmd.Args.Output, stdin); err != nil {
		log.WithField("input", cmd.Args.Input).Error(err)
		return 1
	}
	return 0
}

// options validates the command line and resolves it into conversion
// options.
func (cmd *command) options() (options, error) {
	var opts options
	if cmd.Hyperlinks {
		return opts, fmt.Errorf("hyperlinks are not supported")
	}
	if cmd.SheetName != "" && (cmd.All || cmd.Sheet >= 0) {
		return opts, fmt.Errorf("cannot combine --sheetname with --sheet or --all")
	}
	if cmd.Jobs < 1 {
		return opts, fmt.Errorf("--jobs must be at least 1")
	}

	enc, err := outputEncoding(cmd.OutputEncoding)
	if err != nil {
		return opts, err
	}
	delimiter, err := parseDelimiter(cmd.Delimiter)
	if err != nil {
		return opts, fmt.Errorf("invalid delimiter: %v", err)
	}
	lineTerminator := osLineSep()
	if cmd.LineTerminator != "" {
		if lineTerminator, err = parseEscapedString(cmd.LineTerminator); err != nil {
			return opts, fmt.Errorf("invalid line terminator: %v", err)
		}
	}
	sheetDelimiter, err := parseSheetDelimiter(cmd.SheetDelimiter)
	if err != nil {
		return opts, fmt.Errorf("invalid sheet delimiter: %v", err)
	}
	include, err := compilePatterns(cmd.IncludeSheetPattern)
	if err != nil {
		return opts, fmt.Errorf("invalid include pattern: %v", err)
	}
	exclude, err := compilePatterns(cmd.ExcludeSheetPattern)
	if err != nil {
		return opts, fmt.Errorf("invalid exclude pattern: %v", err)
	}

	return options{
		allSheets:                cmd.All || cmd.Sheet == 0,
		sheetID:                  cmd.Sheet,
		sheetName:                cmd.SheetName,
		delimiter:                delimiter,
		lineTerminator:           lineTerminator,
		dateFormat:               cmd.DateFormat,
		floatFormat:              cmd.FloatFormat,
		encoding:                 enc,
		ignoreEmpty:              cmd.IgnoreEmpty,
		escape:                   cmd.Escape,
		sheetDelimiter:           sheetDelimiter,
		quoting:                  quotingModes[strings.ToLower(cmd.Quoting)],
		includeSheetPattern:      include,
		excludeSheetPattern:      exclude,
		mergeCells:               cmd.MergeCells,
		ignoreWorkbookCorruption: cmd.IgnoreWorkbookCorruption,
		jobs:                     cmd.Jobs,
	}, nil
}

func osLineSep() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}
