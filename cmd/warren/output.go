package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/acorte/warren/internal/ui"
)

func logf(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

func warnf(format string, args ...any) {
	fmt.Fprintln(os.Stderr, ui.Warning(fmt.Sprintf(format, args...)))
}

func encodeJSONToStdout(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
