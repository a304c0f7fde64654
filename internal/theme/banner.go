package theme

import (
	"fmt"
	"io"
)

// Banner returns the CLI banner with the build version.
func Banner(version string) string {
	// ANSI colors
	const cyan = "\033[36m"
	const magenta = "\033[35m"
	const yellow = "\033[33m"
	const reset = "\033[0m"

	art := "" +
		cyan + "  ┌┬┐┬ ┬┌─┐┌─┐┌┬┐┌─┐┌┬┐┬┌┬┐┬ ┬\n" + reset +
		cyan + "   │ │││├┤ ├┤  │ └─┐││││ │ ├─┤\n" + reset +
		cyan + "   ┴ └┴┘└─┘└─┘ ┴ └─┘┴ ┴┴ ┴ ┴ ┴\n" + reset +
		yellow + "  ──────────────────────────────\n" + reset +
		"   forge, dedupe and post on schedule " + magenta + version + reset + "\n"
	return art
}

// PrintBanner writes the banner to w.
func PrintBanner(w io.Writer, version string) {
	fmt.Fprint(w, Banner(version))
}
