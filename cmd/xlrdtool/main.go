package main

import (
	"os"

	"github.com/yamitzky/xlrd-go/v2/cmd/xlrdtool/command"

	"github.com/jessevdk/go-flags"
)

const (
	name = "xlrdtool"
)

var (
	version = "undefined"
	build   = "undefined"
)

func main() {
	parser := flags.NewNamedParser(name, flags.Default)

	parser.AddCommand("dump", command.DumpDescription, command.DumpHelp,
		&command.Dump{})

	parser.AddCommand("count", command.CountDescription, command.CountHelp,
		&command.Count{})

	parser.AddCommand("streams", command.StreamsDescription, command.StreamsHelp,
		&command.Streams{})

	parser.AddCommand("summary", command.SummaryDescription, command.SummaryHelp,
		&command.Summary{})

	parser.AddCommand("version", command.VersionDescription, command.VersionHelp,
		&command.Version{
			Name:    name,
			Version: version,
			Build:   build,
		})

	_, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrCommandRequired {
			parser.WriteHelp(os.Stdout)
		}

		os.Exit(1)
	}
}
