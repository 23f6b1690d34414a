package main

import (
	"flag"
	"log/slog"
	"os"
	"strings"

	"stockcsv/internal/quote"
)

func main() {
	var (
		symbolsArg = flag.String("symbols", "", "comma separated ticker symbols")
		outArg     = flag.String("out", "quotes.csv", "output CSV path")
	)
	flag.Parse()

	svc := quote.NewService(quote.YahooBackend{})
	if err := svc.SaveSnapshot(splitSymbols(*symbolsArg), *outArg); err != nil {
		slog.Error("snapshot failed", "error", err)
		os.Exit(1)
	}
}

// splitSymbols splits a comma separated list, dropping blank entries.
func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
