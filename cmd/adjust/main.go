// cmd/adjust/main.go
//
// adjust folds demo scores into a lab report produced by grade:
//
//	adjust <lab.csv> <demo.csv> [-o adjusted-grades.csv]

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kingrea/marker/internal/adjust"
	"github.com/kingrea/marker/internal/logbook"
)

func main() {
	fs := flag.NewFlagSet("adjust", flag.ExitOnError)
	var output string
	fs.StringVar(&output, "o", adjust.DefaultOutput, "output CSV path")
	fs.StringVar(&output, "output", adjust.DefaultOutput, "output CSV path")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: adjust <lab.csv> <demo.csv> [-o adjusted-grades.csv]")
		fs.PrintDefaults()
	}

	var positional []string
	args := os.Args[1:]
	for {
		_ = fs.Parse(args)
		rest := fs.Args()
		if len(rest) == 0 {
			break
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
	if len(positional) != 2 {
		fs.Usage()
		os.Exit(2)
	}

	logger := logbook.New(os.Stdout, logbook.LevelInfo)
	defer logger.Close()
	if _, err := adjust.Files(positional[0], positional[1], output, logger); err != nil {
		die("%v", err)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "adjust: "+format+"\n", args...)
	os.Exit(1)
}
