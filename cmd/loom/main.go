// Package main provides the Loom CLI.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	loom "github.com/everydev1618/goloom"
	"github.com/everydev1618/goloom/llm"
	"github.com/everydev1618/goloom/parser"
	"github.com/everydev1618/goloom/script"
	"github.com/everydev1618/goloom/store"
	"github.com/everydev1618/goloom/tools"
)

var (
	version = "dev"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		runCmd(args)
	case "validate":
		validateCmd(args)
	case "repl":
		replCmd(args)
	case "runs":
		runsCmd(args)
	case "version":
		fmt.Printf("loom %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Loom - agent language runtime

Usage:
  loom <command> [options]

Commands:
  run       Run an agent from a .loom file
  validate  Validate a .loom file
  repl      Interactive expression REPL
  runs      List recorded runs
  version   Print version information
  help      Show this help message

Examples:
  loom run crew.loom --agent researcher --input "What changed in Go 1.24?"
  loom validate crew.loom
  loom repl crew.loom

Run 'loom <command> --help' for more information on a command.`)
}

// loadProgram compiles a .loom file with the configured tool registry.
func loadProgram(file string, settings loom.Settings) (*loom.Program, error) {
	reg := tools.NewRegistry(tools.WithSandbox(settings.Sandbox))
	if err := tools.RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	for _, dir := range settings.ToolDirs {
		if err := reg.LoadDirectory(dir); err != nil {
			return nil, fmt.Errorf("loading tools from %s: %w", dir, err)
		}
	}
	return loom.LoadFile(file,
		loom.WithRegistry(reg),
		loom.WithLogger(settings.Logger()),
	)
}

// runCmd executes an agent from a .loom file.
func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	agentName := fs.String("agent", "", "Agent to run")
	input := fs.String("input", "", "Initial user message")
	configPath := fs.String("config", "", "Path to loom.yaml (default ~/.loom/loom.yaml)")
	timeout := fs.Duration("timeout", 10*time.Minute, "Maximum execution time")
	output := fs.String("output", "", "Output format: json or text (default)")
	noStore := fs.Bool("no-store", false, "Disable run recording")

	fs.Usage = func() {
		fmt.Println(`Usage: loom run <file.loom> [options]

Run an agent from a .loom file.

Options:`)
		fs.PrintDefaults()
		fmt.Println(`
Examples:
  loom run crew.loom --agent researcher --input "What changed in Go 1.24?"
  loom run crew.loom --agent summarizer --output json`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: no .loom file specified")
		fs.Usage()
		os.Exit(1)
	}
	file := fs.Arg(0)

	settings, err := loom.LoadSettings(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := loom.EnsureHome(); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating home directory: %v\n", err)
		os.Exit(1)
	}

	prog, err := loadProgram(file, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", file, err)
		os.Exit(1)
	}

	name := *agentName
	if name == "" {
		agents := prog.Agents()
		if len(agents) == 1 {
			name = agents[0]
		} else {
			fmt.Fprintln(os.Stderr, "Error: multiple agents found, specify one with --agent")
			fmt.Fprintln(os.Stderr, "Available agents:")
			for _, a := range agents {
				fmt.Fprintf(os.Stderr, "  - %s\n", a)
			}
			os.Exit(1)
		}
	}

	backend, err := llm.New(settings.Provider, settings.Model, settings.ResolveAPIKey())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := []loom.RunnerOption{loom.WithDefaultModel(settings.Model)}
	if settings.DBPath != "" && !*noStore {
		st, err := store.NewSQLiteStore(settings.DBPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening run store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()
		if err := st.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing run store: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, loom.WithRecorder(st))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := loom.NewRunner(backend, prog, opts...).Run(ctx, name, *input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch *output {
	case "json":
		data, _ := json.MarshalIndent(map[string]any{
			"run_id":        result.RunID,
			"agent":         result.Agent,
			"output":        result.Output,
			"steps":         result.Steps,
			"input_tokens":  result.InputTokens,
			"output_tokens": result.OutputTokens,
		}, "", "  ")
		fmt.Println(string(data))
	default:
		fmt.Println(result.Output)
	}
}

// validateCmd validates a .loom file without executing it.
func validateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "Show detailed validation results")

	fs.Usage = func() {
		fmt.Println(`Usage: loom validate <file.loom> [options]

Validate a .loom file without executing it.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: no .loom file specified")
		fs.Usage()
		os.Exit(1)
	}
	file := fs.Arg(0)

	settings, err := loom.LoadSettings("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	prog, err := loadProgram(file, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("File: %s\n\n", file)
		fmt.Printf("Agents (%d):\n", len(prog.Agents()))
		for _, name := range prog.Agents() {
			agent, _ := prog.Agent(name)
			model := agent.Model
			if model == "" {
				model = "(default)"
			}
			fmt.Printf("  - %s: model=%s max_steps=%d tools=%s\n",
				name, model, agent.MaxSteps, strings.Join(agent.Tools, ","))
		}
		fmt.Printf("\nTools:\n")
		for _, name := range prog.Registry().Names() {
			fmt.Printf("  - %s\n", name)
		}
	}

	fmt.Printf("Valid: %s\n", file)
}

// runsCmd lists recorded runs from the store.
func runsCmd(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum runs to list")
	configPath := fs.String("config", "", "Path to loom.yaml")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	settings, err := loom.LoadSettings(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.NewSQLiteStore(settings.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening run store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing run store: %v\n", err)
		os.Exit(1)
	}

	runs, err := st.ListRuns(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, r := range runs {
		fmt.Printf("%s  %-10s  %-8s  %s\n",
			r.StartedAt.Format(time.RFC3339), r.Agent, r.Status, r.ID)
	}
}

// replCmd starts an interactive expression REPL. With a .loom file
// loaded, its tools and enums are in scope.
func replCmd(args []string) {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Println(`Usage: loom repl [file.loom]

Start an interactive REPL for evaluating Loom expressions.

Commands:
  /agents  List declared agents
  /tools   List registered tools
  /help    Show REPL help
  /quit    Exit the REPL`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	settings, err := loom.LoadSettings("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	source := ""
	file := "repl.loom"
	if fs.NArg() > 0 {
		file = fs.Arg(0)
		data, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", file, err)
			os.Exit(1)
		}
		source = string(data)
	}

	reg := tools.NewRegistry(tools.WithSandbox(settings.Sandbox))
	if err := tools.RegisterBuiltins(reg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	prog, err := loom.Load(source, file, loom.WithRegistry(reg), loom.WithLogger(settings.Logger()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", file, err)
		os.Exit(1)
	}
	if fs.NArg() > 0 {
		fmt.Printf("Loaded: %s (%d agents)\n", file, len(prog.Agents()))
	}

	fmt.Println("Loom REPL - Type /help for commands, /quit to exit")
	exec := prog.Executor()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("loom> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			switch strings.Fields(line)[0] {
			case "/quit", "/exit", "/q":
				return
			case "/help", "/h":
				fs.Usage()
			case "/agents":
				for _, name := range prog.Agents() {
					fmt.Printf("  %s\n", name)
				}
			case "/tools":
				for _, name := range prog.Registry().Names() {
					fmt.Printf("  %s\n", name)
				}
			default:
				fmt.Printf("Unknown command: %s\n", line)
			}
			continue
		}

		evalLine(exec, line)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

// evalLine evaluates one REPL line: a let statement binds a variable,
// anything else is evaluated as an expression.
func evalLine(exec *script.Executor, line string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if rest, ok := strings.CutPrefix(line, "let "); ok {
		name, src, found := strings.Cut(rest, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			fmt.Println("Usage: let <name> = <expression>")
			return
		}
		expr, err := parser.ParseExpr(src)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		v, err := exec.EvalExpr(ctx, expr)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		exec.Env().Define(name, v)
		return
	}

	expr, err := parser.ParseExpr(line)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	v, err := exec.EvalExpr(ctx, expr)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(script.Stringify(v))
}
