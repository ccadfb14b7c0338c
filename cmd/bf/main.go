// Command bf runs the tape-language toolchain: lex, optimize, then execute
// through either the profiling interpreter or the JIT simulation engine.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"bf/internal/bferror"
	"bf/internal/cliutil"
	"bf/internal/history"
	"bf/internal/interp"
	"bf/internal/ir"
	"bf/internal/jit"
	"bf/internal/lexer"
	"bf/internal/live"
	"bf/internal/optimizer"
	"bf/internal/tape"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "history":
		if err := historyCommand(args[1:]); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "-h", "--help", "help":
		usage()
	default:
		// No explicit "run" subcommand required: every other invocation
		// runs a program, matching profilebf.c's flag-then-file style.
		rest := args
		if args[0] == "run" {
			rest = args[1:]
		}
		if err := runCommand(rest); err != nil {
			if bfErr, ok := errors.Cause(err).(*bferror.Error); ok {
				fmt.Fprintln(os.Stderr, bfErr.Error())
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "%+v\n", err)
			os.Exit(2)
		}
	}
}

// runConfig is filled in by the teacher-style hand-rolled flag loop below.
type runConfig struct {
	cell             tape.CellSize
	eof              interp.EOFPolicy
	suppressIO       bool
	debug            bool
	physicalOverflow bool
	quick            bool
	quickWithCounts  bool
	allCells         bool
	skipOptimize     bool
	useJIT           bool
	historyDSN       string
	liveAddr         string
	file             string
}

func parseRunArgs(args []string) (*runConfig, error) {
	cfg := &runConfig{eof: interp.EOFNoChange}
	for len(args) > 0 {
		a := args[0]
		switch a {
		case "-e":
			cfg.eof = interp.EOFMinusOne
		case "-z":
			cfg.eof = interp.EOFZero
		case "-n":
			cfg.eof = interp.EOFNoChange
		case "-N":
			cfg.suppressIO = true
		case "-d":
			cfg.debug = true
		case "-p":
			cfg.physicalOverflow = true
		case "-q":
			cfg.quick = true
		case "-Q":
			cfg.quick = true
			cfg.quickWithCounts = true
		case "-a":
			cfg.allCells = true
		case "-Z":
			cfg.skipOptimize = true
		case "-w":
			cfg.cell = tape.Cell16
		case "-sc":
			cfg.cell = tape.Cell8Signed
		case "-12":
			cfg.cell = tape.Cell12
		case "-7":
			cfg.cell = tape.Cell7
		case "-jit":
			cfg.useJIT = true
		case "-interp":
			// the default back-end; accepted explicitly so scripts can
			// name it symmetrically with -jit.
		case "-history":
			if len(args) < 2 {
				return nil, bferror.Setup("-history requires a dsn argument")
			}
			cfg.historyDSN = args[1]
			args = args[1:]
		case "-live":
			if len(args) < 2 {
				return nil, bferror.Setup("-live requires an address argument")
			}
			cfg.liveAddr = args[1]
			args = args[1:]
		case "-h", "--help":
			usage()
			os.Exit(0)
		default:
			if strings.HasPrefix(a, "-") && a != "-" {
				return nil, bferror.Setup("unknown option %q", a)
			}
			if cfg.file != "" {
				return nil, bferror.Setup("only one file allowed")
			}
			cfg.file = a
		}
		args = args[1:]
	}
	return cfg, nil
}

func runCommand(args []string) error {
	cfg, err := parseRunArgs(args)
	if err != nil {
		return err
	}

	var source []byte
	if cfg.file == "" || cfg.file == "-" {
		if cfg.file == "" && isatty.IsTerminal(os.Stdin.Fd()) {
			return bferror.Setup("no program file given and stdin is a terminal")
		}
		source, err = io.ReadAll(os.Stdin)
	} else {
		source, err = os.ReadFile(cfg.file)
	}
	if err != nil {
		return errors.Wrap(err, "reading program")
	}

	tokens, runtimeInput := lexer.NewScanner(source, lexer.Options{
		Debug:       cfg.debug,
		Interactive: (cfg.file == "" || cfg.file == "-") && isatty.IsTerminal(os.Stdin.Fd()),
	}).Scan()

	prog := ir.Build(tokens)
	if !cfg.skipOptimize {
		prog = optimizer.Optimize(prog)
	}

	cellCfg := tape.NewConfig(cfg.cell)

	// A terminal '!' split the program from its own trailing input; feed
	// that back to ',' instead of whatever else is left on stdin.
	var stdin io.Reader = os.Stdin
	if runtimeInput != nil {
		stdin = strings.NewReader(string(runtimeInput))
	}

	var liveSession *live.Session
	if cfg.liveAddr != "" {
		liveSession = live.NewSession(history.ProgramHash(source))
		go func() {
			if err := startLiveServer(cfg.liveAddr, liveSession); err != nil {
				log.Printf("live: server stopped: %v", err)
			}
		}()
	}

	backend := "interp"
	if cfg.useJIT {
		backend = "jit"
	}
	if cfg.useJIT && !jit.Available {
		return bferror.Setup("JIT back-end requested but unavailable")
	}

	ctx := context.Background()
	var summary *interp.RunSummary
	if backend == "jit" {
		eng := jit.New(prog, jit.Options{
			Cell:             cellCfg,
			PhysicalOverflow: cfg.physicalOverflow,
			EOF:              cfg.eof,
			SuppressIO:       cfg.suppressIO,
			Stdout:           os.Stdout,
			Stdin:            stdin,
		})
		summary, err = eng.Run(ctx)
	} else {
		opts := interp.Options{
			Cell:             cellCfg,
			PhysicalOverflow: cfg.physicalOverflow,
			EOF:              cfg.eof,
			SuppressIO:       cfg.suppressIO,
			Stdout:           os.Stdout,
			Stdin:            stdin,
		}
		if liveSession != nil {
			opts.Tick = liveSession.Tick
		}
		summary, err = interp.New(prog, opts).Run(ctx)
	}
	if liveSession != nil {
		liveSession.Close()
	}
	if err != nil {
		return err
	}

	if summary.TrailingText {
		fmt.Fprintln(os.Stderr)
	}

	if cfg.quick {
		name := cfg.file
		if name == "" {
			name = "-"
		}
		cliutil.PrintQuickSummary(os.Stderr, summary, name, cfg.quickWithCounts)
	} else {
		cliutil.PrintSummary(os.Stderr, summary, cfg.physicalOverflow)
	}

	if cfg.historyDSN != "" {
		if err := recordHistory(ctx, cfg.historyDSN, source, backend, summary); err != nil {
			log.Printf("history: %v", err)
		}
	}
	return nil
}

func recordHistory(ctx context.Context, dsn string, source []byte, backend string, summary *interp.RunSummary) error {
	store, err := history.Open(ctx, dsn)
	if err != nil {
		return errors.Wrap(err, "opening history store")
	}
	defer store.Close()
	_, err = store.Record(ctx, history.ProgramHash(source), backend, summary)
	return errors.Wrap(err, "recording run")
}

func historyCommand(args []string) error {
	dsn := ""
	var program string
	for len(args) > 0 {
		switch args[0] {
		case "-history":
			if len(args) < 2 {
				return bferror.Setup("-history requires a dsn argument")
			}
			dsn = args[1]
			args = args[1:]
		default:
			program = args[0]
		}
		args = args[1:]
	}
	if dsn == "" {
		return bferror.Setup("bf history requires -history <dsn>")
	}

	ctx := context.Background()
	store, err := history.Open(ctx, dsn)
	if err != nil {
		return errors.Wrap(err, "opening history store")
	}
	defer store.Close()

	var hash string
	if program != "" {
		source, err := os.ReadFile(program)
		if err != nil {
			return errors.Wrap(err, "reading program")
		}
		hash = history.ProgramHash(source)
	}

	if hash == "" {
		return bferror.Setup("bf history currently requires a program argument to look up by hash")
	}
	records, err := store.ForProgram(ctx, hash)
	if err != nil {
		return errors.Wrap(err, "querying history")
	}
	if len(records) == 0 {
		fmt.Println("No recorded runs for this program.")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%s  %-7s final=%-10s overflows=%-6s steps=%-10s %s\n",
			r.RunID, r.Backend, humanize.Comma(r.FinalCell),
			humanize.Comma(r.Overflows), humanize.Comma(r.Steps),
			humanize.Time(r.StartedAt))
	}
	return nil
}

func startLiveServer(addr string, s *live.Session) error {
	mux := newLiveMux(s)
	return listenAndServe(addr, mux)
}

func usage() {
	fmt.Println("Usage: bf [options] [file]")
	fmt.Println("       bf run [options] [file]")
	fmt.Println("       bf history -history <dsn> <file>")
	fmt.Println()
	fmt.Println("Runs the tape-language program in file (stdin if omitted) and reports a")
	fmt.Println("profiling summary.")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("    -e  Return EOF (-1) on end of file.")
	fmt.Println("    -z  Return zero on end of file.")
	fmt.Println("    -n  Do not change the current cell on end of file (default).")
	fmt.Println("    -N  Disable all I/O from the program; just output the stats.")
	fmt.Println("    -d  Accept the '#' command (tokenized only; it prints nothing).")
	fmt.Println("    -p  Count physical overflows, not logical ones.")
	fmt.Println("    -q  Output a quick one-line summary.")
	fmt.Println("    -Q  Output a quick one-line summary with extra counts.")
	fmt.Println("    -a  Accepted; the summary prints no tape dump, so it has no effect.")
	fmt.Println("    -Z  Skip the optimizer; run the naive IR as-is.")
	fmt.Println("    -sc Use signed 8-bit cells.")
	fmt.Println("    -w  Use unsigned 16-bit cells.")
	fmt.Println("    -12 Use unsigned 12-bit cells.")
	fmt.Println("    -7  Use unsigned 7-bit cells.")
	fmt.Println("    -jit / -interp  Select the back-end (default: interp).")
	fmt.Println("    -history <dsn>  Record this run to a SQL history store.")
	fmt.Println("    -live <addr>    Stream profiling ticks over a websocket.")
}
