// zipstream serves directories as ZIP archives streamed on the fly, and downloads them.
//
// Usage:
//
//	zipstream [serve] [flags]
//	zipstream fetch [flags] <url>
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = serveCmd(args)
	case "fetch":
		err = fetchCmd(args)
	case "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`zipstream - stream directories as ZIP archives

USAGE
    zipstream [serve] [flags]
    zipstream fetch [flags] <url>

COMMANDS
    serve    Serve /archive/<name>/ for every directory under --photo-path (default)
    fetch    Download an archive and extract it

EXAMPLES
    # Serve test_photos/ with logging and a one second pause between chunks
    zipstream --log --delay 1

    # Download and unpack an archive
    zipstream fetch -C out http://localhost:8080/archive/7kna/

ENVIRONMENT
    Every serve flag may also be set as ZIPSTREAM_<FLAG>, e.g. ZIPSTREAM_PHOTO_PATH.
`)
}
