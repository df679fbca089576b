package command

import (
	"github.com/yamitzky/xlrd-go/v2/xlrd"
)

const (
	DumpDescription = "Dumps the BIFF records of a workbook"
	DumpHelp        = DumpDescription + "\n\n" +
		"Every record of the workbook stream is printed with its code, name\n" +
		"and length, followed by its contents in hex and as characters.\n" +
		"Offsets count from the start of the workbook stream."

	CountDescription = "Counts the BIFF records of a workbook"
	CountHelp        = CountDescription + "\n\n" +
		"Prints how often each record type occurs in the workbook stream,\n" +
		"sorted by record name."
)

// Dump represents the `dump` command of xlrdtool.
type Dump struct {
	input
	Unnumbered bool `short:"u" long:"unnumbered" description:"Omit offsets, for meaningful diffs"`
}

// Execute dumps the records of the given file, it honors the
// go-flags.Commander interface.
func (c *Dump) Execute(args []string) error {
	opts, err := c.openOptions()
	if err != nil {
		return err
	}
	return xlrd.DumpWithOptions(c.Args.File, c.stdout(), c.Unnumbered, opts)
}

// Count represents the `count` command of xlrdtool.
type Count struct {
	input
}

// Execute prints the record tally of the given file, it honors the
// go-flags.Commander interface.
func (c *Count) Execute(args []string) error {
	opts, err := c.openOptions()
	if err != nil {
		return err
	}
	return xlrd.CountRecordsWithOptions(c.Args.File, c.stdout(), opts)
}
