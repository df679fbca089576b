package command

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/yamitzky/xlrd-go/v2/xlrd"
)

// input holds the options shared by the commands reading a workbook file.
type input struct {
	Mmap             bool   `long:"mmap" description:"Map the file into memory instead of reading it"`
	IgnoreCorruption bool   `long:"ignore-workbook-corruption" env:"XLRDTOOL_IGNORE_CORRUPTION" description:"Read files whose streams share sectors"`
	LenientMSAT      bool   `long:"lenient-msat" description:"Drop allocation table entries pointing outside the file instead of failing"`
	LogLevel         string `long:"log-level" env:"XLRDTOOL_LOG_LEVEL" choice:"info" choice:"debug" choice:"warning" choice:"error" default:"warning" description:"logging level"`

	Args struct {
		File string `positional-arg-name:"file" required:"yes" description:"xls file to read"`
	} `positional-args:"yes" required:"yes"`

	// Out receives the command output, os.Stdout when nil.
	Out io.Writer
	// Log receives diagnostics, os.Stderr when nil.
	Log io.Writer
}

func (c *input) stdout() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *input) logger() (*logrus.Logger, error) {
	log := logrus.New()
	if c.Log != nil {
		log.Out = c.Log
	}

	level := c.LogLevel
	if level == "" {
		level = "warning"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("cannot parse log level: %s", err.Error())
	}
	log.SetLevel(lvl)
	return log, nil
}

func (c *input) openOptions() (*xlrd.OpenWorkbookOptions, error) {
	log, err := c.logger()
	if err != nil {
		return nil, err
	}
	return &xlrd.OpenWorkbookOptions{
		Logger:                   log.WithField("file", c.Args.File),
		UseMmap:                  c.Mmap,
		IgnoreWorkbookCorruption: c.IgnoreCorruption,
		LenientMSAT:              c.LenientMSAT,
	}, nil
}
