package command

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/yamitzky/xlrd-go/v2/xlrd"
)

const (
	StreamsDescription = "Lists the streams of a compound document"
	StreamsHelp        = StreamsDescription + "\n\n" +
		"Walks the directory of an OLE2 compound document and prints every\n" +
		"storage and stream with its size and a BLAKE3 fingerprint of the\n" +
		"stream contents. With --extract the raw contents of one stream are\n" +
		"written to the output instead."
)

// Streams represents the `streams` command of xlrdtool.
type Streams struct {
	input
	FullHash bool   `long:"full-hash" description:"Print the whole 256-bit fingerprint"`
	Extract  string `short:"x" long:"extract" description:"Write the contents of the named stream, e.g. Workbook"`
}

// Execute lists or extracts the streams of the given file, it honors the
// go-flags.Commander interface.
func (c *Streams) Execute(args []string) error {
	log, err := c.logger()
	if err != nil {
		return err
	}
	mem, err := os.ReadFile(c.Args.File)
	if err != nil {
		return err
	}
	cd, err := xlrd.NewCompDoc(mem, &xlrd.CompDocOptions{
		Logger:                   log.WithField("file", c.Args.File),
		IgnoreWorkbookCorruption: c.IgnoreCorruption,
		LenientMSAT:              c.LenientMSAT,
	})
	if err != nil {
		return err
	}

	out := c.stdout()
	if c.Extract != "" {
		data, err := cd.Stream(c.Extract)
		if err != nil {
			return err
		}
		if data == nil {
			return fmt.Errorf("stream %q not found", c.Extract)
		}
		_, err = out.Write(data)
		return err
	}

	return cd.Walk(func(path string, d *xlrd.DirNode) error {
		return c.printEntry(out, cd, path, d)
	})
}

func (c *Streams) printEntry(w io.Writer, cd *xlrd.CompDoc, path string, d *xlrd.DirNode) error {
	switch d.EType {
	case xlrd.DirStorage:
		_, err := fmt.Fprintf(w, "storage %10s %-16s %s\n", "-", "-", path)
		return err
	case xlrd.DirStream:
		data, err := cd.Stream(path)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "stream  %10d %-16s %s\n", len(data), fingerprint(data, c.FullHash), path)
		return err
	}
	return nil
}

// fingerprint is the hex BLAKE3 digest of data, cut to 64 bits unless
// full is set.
func fingerprint(data []byte, full bool) string {
	sum := blake3.Sum256(data)
	if full {
		return hex.EncodeToString(sum[:])
	}
	return hex.EncodeToString(sum[:8])
}
