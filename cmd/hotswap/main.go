// hotswap CLI - serves a reloadable VM and pushes new type versions to it
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/hotswap/config"
)

// UnitExt is the file extension of encoded units.
const UnitExt = ".hsu"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: hotswap [options] <command> [args...]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve                          Load units and serve the reload service\n")
	fmt.Fprintf(os.Stderr, "  apply <unit>                   Push a new version of a type\n")
	fmt.Fprintf(os.Stderr, "  describe <unit>                Print a unit's descriptor\n")
	fmt.Fprintf(os.Stderr, "  describe -remote <type>        Print the current descriptor of a served type\n")
	fmt.Fprintf(os.Stderr, "  diff <old> <new>               Diff the descriptors of two units\n")
	fmt.Fprintf(os.Stderr, "  diff -remote <unit>            Diff a unit against the served version\n")
	fmt.Fprintf(os.Stderr, "  executor <original> <new>      Disassemble the executor of a new version\n")
	fmt.Fprintf(os.Stderr, "  list                           List served reload-aware types\n")
	fmt.Fprintf(os.Stderr, "  history [type]                 Show the reload journal\n")
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nConfiguration is read from the nearest %s.\n", config.FileName)
}

func main() {
	verbose := flag.Int("v", -1, "Log verbosity (overrides [log] verbosity)")
	dir := flag.String("C", ".", "Directory to search for "+config.FileName)
	addr := flag.String("addr", "", "Server address (overrides [server] addr)")
	scope := flag.String("scope", "", "Registry scope (overrides [units] scope)")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.FindAndLoad(*dir)
	if err != nil {
		fatalf("%v", err)
	}
	if *verbose >= 0 {
		cfg.Log.Verbosity = *verbose
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *scope != "" {
		cfg.Units.Scope = *scope
	}
	configureLog(cfg)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "serve":
		err = runServe(cfg)
	case "apply":
		err = runApply(cfg, args[1:])
	case "describe":
		err = runDescribe(cfg, args[1:])
	case "diff":
		err = runDiff(cfg, args[1:])
	case "executor":
		err = runExecutor(os.Stdout, args[1:])
	case "list":
		err = runList(cfg)
	case "history":
		err = runHistory(cfg, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatalf("%v", err)
	}
}

func configureLog(cfg *config.Config) {
	var path *string
	if cfg.Log.File != "" {
		path = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, path)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
