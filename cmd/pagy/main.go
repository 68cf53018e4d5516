// pagy is a simple CLI for poking at paged files.
//
// Usage:
//
//	pagy [opts] <file>       Open a file (created if missing) in a REPL
//	pagy init [--global]     Write a starter config file
//	pagy rm <file>           Delete a file
//
// Options:
//
//	-p, --page-size    Page size in bytes
//	-m, --max-pages    Resident page budget
//	-c, --config       Explicit config file path
//	-v, --verbose      Log page cache activity to stderr
//
// Commands (in REPL):
//
//	read <offset> <length>        Read bytes through the cache
//	write <offset> <data>         Write bytes (fire-and-forget)
//	fill <offset> <count> [byte]  Write count repeated bytes
//	sync                          Flush all dirty pages
//	info                          Show cache info and counters
//	bench <count>                 Benchmark scattered writes and reads
//	help                          Show this help
//	exit / quit / q               Exit (flushes on the way out)
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/peterh/liner"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/calvinalkan/pagedfile/pkg/pagedfile"
)

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "init":
			return runInit(os.Args[2:])
		case "rm":
			return runRm(os.Args[2:])
		}
	}

	return runOpen(os.Args[1:])
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  pagy [opts] <file>       Open a file (created if missing)\n")
	fmt.Fprintf(os.Stderr, "  pagy init [--global]     Write a starter config file\n")
	fmt.Fprintf(os.Stderr, "  pagy rm <file>           Delete a file\n")
	fmt.Fprintf(os.Stderr, "\nRun 'pagy --help' for options.\n")
}

func runOpen(args []string) error {
	flags := pflag.NewFlagSet("pagy", pflag.ContinueOnError)

	pageSize := flags.IntP("page-size", "p", 0, "page size in bytes")
	maxPages := flags.IntP("max-pages", "m", 0, "resident page budget")
	configPath := flags.StringP("config", "c", "", "explicit config file path")
	verbose := flags.BoolP("verbose", "v", false, "log page cache activity to stderr")

	flags.Usage = func() {
		printUsage()
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flags.PrintDefaults()
	}

	err := flags.Parse(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return err
	}

	if flags.NArg() < 1 {
		flags.Usage()

		return errors.New("missing file path")
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	cfg, sources, err := LoadConfig(workDir, *configPath, Config{
		PageSize: *pageSize,
		MaxPages: *maxPages,
	}, os.Environ())
	if err != nil {
		return err
	}

	logger := zap.NewNop()

	if *verbose {
		logCfg := zap.NewDevelopmentConfig()
		logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)

		logger, err = logCfg.Build()
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()
	}

	path := flags.Arg(0)

	f, err := pagedfile.Open(pagedfile.Options{
		Path:     path,
		PageSize: cfg.PageSize,
		MaxPages: cfg.MaxPages,
		Logger:   logger,
	})
	if err != nil {
		if errors.Is(err, pagedfile.ErrBusy) {
			return fmt.Errorf("%s is held by another process", path)
		}

		return fmt.Errorf("opening %s: %w", path, err)
	}

	repl := &REPL{file: f, path: path}

	if sources.Global != "" {
		fmt.Printf("Loaded global config: %s\n", sources.Global)
	}

	if sources.Project != "" {
		fmt.Printf("Loaded config: %s\n", sources.Project)
	}

	replErr := repl.Run()
	closeErr := f.Close()

	if closeErr != nil && !errors.Is(closeErr, pagedfile.ErrClosed) {
		closeErr = fmt.Errorf("closing %s: %w", path, closeErr)
	} else {
		closeErr = nil
	}

	return errors.Join(replErr, closeErr)
}

func runInit(args []string) error {
	flags := pflag.NewFlagSet("init", pflag.ContinueOnError)

	global := flags.Bool("global", false, "write the global config instead of ./"+ConfigFileName)

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pagy init [--global]\n\n")
		fmt.Fprintf(os.Stderr, "Write a starter config file with the library defaults spelled out.\n\n")
		flags.PrintDefaults()
	}

	err := flags.Parse(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return err
	}

	target := ConfigFileName

	if *global {
		target = getGlobalConfigPath(os.Environ())
		if target == "" {
			return errors.New("cannot determine global config path")
		}

		err := os.MkdirAll(filepath.Dir(target), 0o755)
		if err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("config file already exists: %s", target)
	}

	content, err := FormatConfig(Config{
		PageSize: pagedfile.DefaultPageSize,
		MaxPages: pagedfile.DefaultMaxPages,
	})
	if err != nil {
		return err
	}

	err = atomic.WriteFile(target, strings.NewReader(content+"\n"))
	if err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}

	fmt.Printf("Wrote %s\n", target)

	return nil
}

func runRm(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: pagy rm <file>")
	}

	err := pagedfile.Delete(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %s\n", args[0])

	return nil
}

// REPL is the interactive command loop.
type REPL struct {
	file  *pagedfile.File
	path  string
	liner *liner.State
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".pagy_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	// Load history
	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	info, err := r.file.Info()
	if err != nil {
		return err
	}

	fmt.Printf("pagy - paged file CLI (page_size=%d, max_pages=%d, size=%d)\n",
		info.PageSize, info.MaxPages, info.FileSize)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("pagy> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")

			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "read", "r":
			r.cmdRead(args)

		case "write", "w":
			r.cmdWrite(args)

		case "fill":
			r.cmdFill(args)

		case "sync", "flush":
			r.cmdSync()

		case "info":
			r.cmdInfo()

		case "bench":
			r.cmdBench(args)

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

// saveHistory persists command history to disk.
func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

// completer provides tab completion for commands.
func (r *REPL) completer(line string) []string {
	commands := []string{
		"read", "write", "fill",
		"sync", "flush", "info", "bench",
		"clear", "cls",
		"help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  read <offset> <length>        Read bytes through the cache")
	fmt.Println("  write <offset> <data>         Write bytes (fire-and-forget)")
	fmt.Println("  fill <offset> <count> [byte]  Write count repeated bytes")
	fmt.Println("  sync                          Flush all dirty pages")
	fmt.Println("  info                          Show cache info and counters")
	fmt.Println("  bench <count>                 Benchmark scattered writes and reads")
	fmt.Println("  help                          Show this help")
	fmt.Println("  exit / quit / q               Exit (flushes on the way out)")
	fmt.Println()
	fmt.Println("Data: hex (e.g., 'deadbeef') or plain text (e.g., 'foo').")
	fmt.Println("Offsets: decimal byte offsets into the file.")
}

// parseData parses write payloads from user input.
// Tries hex first, falls back to plain text.
func parseData(s string) []byte {
	raw, err := hex.DecodeString(s)
	if err != nil {
		raw = []byte(s)
	}

	return raw
}

// formatData formats read results for display: text if printable, hex
// otherwise.
func formatData(data []byte) string {
	printable := true

	for _, b := range data {
		if b != 0 && (b < 32 || b > 126) {
			printable = false

			break
		}
	}

	if printable {
		return fmt.Sprintf("%q", string(data))
	}

	return hex.EncodeToString(data)
}

func parseOffset(s string) (int64, error) {
	off, err := strconv.ParseInt(s, 10, 64)
	if err != nil || off < 0 {
		return 0, fmt.Errorf("offset must be a non-negative integer, got %q", s)
	}

	return off, nil
}

func (r *REPL) cmdRead(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: read <offset> <length>")

		return
	}

	offset, err := parseOffset(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	length, err := strconv.Atoi(args[1])
	if err != nil || length < 0 {
		fmt.Printf("Error: length must be a non-negative integer, got %q\n", args[1])

		return
	}

	data, err := r.file.ReadAt(offset, length)
	if err != nil {
		if errors.Is(err, io.EOF) {
			fmt.Println("(EOF: offset is at or past the end of file)")

			return
		}

		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("%d bytes at %d: %s\n", len(data), offset, formatData(data))
}

func (r *REPL) cmdWrite(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: write <offset> <data>")

		return
	}

	offset, err := parseOffset(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	data := parseData(strings.Join(args[1:], " "))

	err = r.file.Write(offset, data)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: buffered %d bytes at %d\n", len(data), offset)
}

func (r *REPL) cmdFill(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: fill <offset> <count> [byte]")

		return
	}

	offset, err := parseOffset(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	count, err := strconv.Atoi(args[1])
	if err != nil || count < 1 {
		fmt.Println("Error: count must be a positive integer")

		return
	}

	fillByte := byte(0)

	if len(args) >= 3 {
		v, err := strconv.ParseUint(args[2], 0, 8)
		if err != nil {
			fmt.Printf("Error parsing byte value: %v\n", err)

			return
		}

		fillByte = byte(v)
	}

	data := make([]byte, count)
	for i := range data {
		data[i] = fillByte
	}

	err = r.file.Write(offset, data)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: buffered %d x 0x%02x at %d\n", count, fillByte, offset)
}

func (r *REPL) cmdSync() {
	start := time.Now()

	err := r.file.Sync()
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: flushed in %v\n", time.Since(start).Round(time.Microsecond))
}

func (r *REPL) cmdInfo() {
	info, err := r.file.Info()
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("File Info:\n")
	fmt.Printf("  Path:            %s\n", r.path)
	fmt.Printf("  Logical size:    %d bytes\n", info.FileSize)
	fmt.Printf("  Page size:       %d bytes\n", info.PageSize)
	fmt.Printf("  Max pages:       %d\n", info.MaxPages)
	fmt.Printf("  Resident pages:  %d\n", info.ResidentPages)
	fmt.Printf("  Dirty pages:     %d\n", info.DirtyPages)
	fmt.Printf("  Hits / misses:   %d / %d\n", info.Hits, info.Misses)
	fmt.Printf("  Evictions:       %d\n", info.Evictions)
	fmt.Printf("  Flushes:         %d\n", info.Flushes)
}

func (r *REPL) cmdBench(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: bench <count>")

		return
	}

	count, err := strconv.Atoi(args[0])
	if err != nil || count < 1 {
		fmt.Println("Error: count must be a positive integer")

		return
	}

	info, err := r.file.Info()
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	// Scatter over four times the cache's worth of pages so eviction is
	// part of what gets measured.
	span := int64(info.PageSize) * int64(info.MaxPages) * 4
	payload := make([]byte, 64)

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))

	offsets := make([]int64, count)
	for i := range offsets {
		offsets[i] = rng.Int64N(span)

		for j := range payload {
			payload[j] = byte(rng.Uint32())
		}
	}

	fmt.Printf("Benchmarking %d operations...\n", count)

	writeStart := time.Now()

	for i, off := range offsets {
		err := r.file.Write(off, payload)
		if err != nil {
			fmt.Printf("Error at write %d: %v\n", i+1, err)

			return
		}
	}

	err = r.file.Sync()
	if err != nil {
		fmt.Printf("Error syncing: %v\n", err)

		return
	}

	writeElapsed := time.Since(writeStart)

	readStart := time.Now()

	for i, off := range offsets {
		_, err := r.file.ReadAt(off, len(payload))
		if err != nil && !errors.Is(err, io.EOF) {
			fmt.Printf("Error at read %d: %v\n", i+1, err)

			return
		}
	}

	readElapsed := time.Since(readStart)

	fmt.Printf("\nResults:\n")
	fmt.Printf("  Writes: %d ops in %v (%.0f ops/sec, incl. final sync)\n",
		count, writeElapsed.Round(time.Millisecond), float64(count)/writeElapsed.Seconds())
	fmt.Printf("  Reads:  %d ops in %v (%.0f ops/sec)\n",
		count, readElapsed.Round(time.Millisecond), float64(count)/readElapsed.Seconds())
}
