// Command covergraph is the CLI for the insurance graph RAG engine:
// ingest document sets, ask questions interactively or one-shot, run
// improvement cycles, and watch a directory for changes.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/evanhollis/covergraph"
	"github.com/evanhollis/covergraph/discover"
	"github.com/evanhollis/covergraph/graph"
	"github.com/evanhollis/covergraph/qa"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	initDir := flag.String("init", "", "Ingest all documents under this directory and bootstrap the schema")
	demo := flag.Bool("demo", false, "Start an interactive session against a synthetic fixture graph")
	question := flag.String("query", "", "Ask a single question and print the answer")
	user := flag.String("user", "", "User ID for session context")
	improve := flag.Bool("improve", false, "Run one improvement cycle and print the report")
	report := flag.Bool("report", false, "Print the system health report")
	watchDir := flag.String("watch", "", "Watch this directory and re-ingest changed documents")
	exportPath := flag.String("export", "", "Write the knowledge graph to this file as JSON")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))
	_ = godotenv.Load()

	cfg, err := covergraph.LoadConfig(*configPath)
	if err != nil {
		fatal("loading config: %v", err)
	}
	if *demo {
		// The demo runs against a throwaway database.
		dir, err := os.MkdirTemp("", "covergraph-demo-*")
		if err != nil {
			fatal("creating demo workspace: %v", err)
		}
		defer os.RemoveAll(dir)
		cfg.DBPath = dir + "/demo.db"
	}

	engine, err := covergraph.New(cfg)
	if err != nil {
		fatal("creating engine: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()

	switch {
	case *initDir != "":
		runInit(ctx, engine, *initDir)
	case *demo:
		runDemo(ctx, engine)
	case *question != "":
		ask(ctx, engine, *question, *user)
	case *improve:
		runImprove(ctx, engine)
	case *report:
		runReport(ctx, engine)
	case *watchDir != "":
		runWatch(ctx, engine, *watchDir)
	case *exportPath != "":
		if err := graph.ExportJSON(ctx, engine.Store(), *exportPath); err != nil {
			fatal("exporting graph: %v", err)
		}
		fmt.Printf("Graph written to %s.\n", *exportPath)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// runInit ingests a document set, bootstraps the schema from what was
// observed, and runs the self-test suites as a smoke check.
func runInit(ctx context.Context, engine covergraph.Engine, dir string) {
	fmt.Printf("Ingesting documents under %s...\n", dir)
	results, err := engine.IngestDir(ctx, dir)
	if err != nil {
		fatal("ingesting %s: %v", dir, err)
	}
	var ok, failed int
	for _, r := range results {
		if r.Error != nil {
			failed++
			fmt.Printf("  FAILED %s: %v\n", r.Path, r.Error)
		} else {
			ok++
		}
	}
	fmt.Printf("Ingested %d documents (%d failed).\n", ok, failed)

	if evo, err := engine.EvolveSchema(ctx); err != nil {
		fmt.Printf("Schema evolution failed: %v\n", err)
	} else {
		fmt.Printf("Schema at version %d (%d entity types applied).\n", evo.Version, len(evo.AppliedEntities))
	}

	rep, err := engine.ImprovementCycle(ctx)
	if err != nil {
		fatal("self test: %v", err)
	}
	fmt.Printf("Self test: %d/%d cases passed (%.0f%%).\n",
		rep.Total-rep.Failed, rep.Total, rep.PassRate*100)
}

// runDemo seeds a synthetic insurance graph and answers questions
// interactively until the user quits.
func runDemo(ctx context.Context, engine covergraph.Engine) {
	g, err := qa.BuildSyntheticGraph(ctx, engine.Store(), time.Now().UnixNano())
	if err != nil {
		fatal("seeding demo graph: %v", err)
	}
	fmt.Printf("Demo graph ready: %d policies, %d claims, %d coverages.\n",
		len(g.Policies), len(g.Claims), len(g.Coverages))
	fmt.Println("You are John Doe (U5001), holder of policy P1001 with claim CL4001.")
	fmt.Println(`Try: "Show me the policy details for policy P1001" or "How do I file a claim?"`)
	fmt.Println(`Type "exit" to quit.`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "exit", "quit", "bye":
			fmt.Println("Goodbye.")
			return
		}
		ask(ctx, engine, line, "U5001")
	}
}

func ask(ctx context.Context, engine covergraph.Engine, question, user string) {
	var opts []covergraph.QueryOption
	if user != "" {
		opts = append(opts, covergraph.WithUser(user))
	}

	a, err := engine.Query(ctx, question, opts...)
	switch {
	case err == nil:
		fmt.Println(a.Text)
		fmt.Printf("  [%s, confidence %.2f, automated]\n", a.Intent, a.Confidence)
	case errors.Is(err, covergraph.ErrEscalated),
		errors.Is(err, covergraph.ErrLowConfidence),
		errors.Is(err, covergraph.ErrNoResults):
		fmt.Println(a.Text)
		fmt.Printf("  [%s, confidence %.2f, escalated: %s]\n", a.Intent, a.Confidence, a.EscalationReason)
	default:
		fatal("query: %v", err)
	}
	for _, fu := range a.FollowUps {
		fmt.Printf("  follow-up: %s\n", fu)
	}
}

func runImprove(ctx context.Context, engine covergraph.Engine) {
	rep, err := engine.ImprovementCycle(ctx)
	if err != nil {
		fatal("improvement cycle: %v", err)
	}
	printJSON(rep)
}

func runReport(ctx context.Context, engine covergraph.Engine) {
	rep, err := engine.SystemReport(ctx)
	if err != nil {
		fatal("system report: %v", err)
	}
	printJSON(rep)
}

// runWatch re-ingests documents as they change on disk until interrupted.
func runWatch(ctx context.Context, engine covergraph.Engine, dir string) {
	w, err := discover.NewWatcher(dir, 0)
	if err != nil {
		fatal("watching %s: %v", dir, err)
	}
	defer w.Close()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	fmt.Printf("Watching %s for document changes. Ctrl-C to stop.\n", dir)

	for {
		select {
		case path, open := <-w.Events:
			if !open {
				return
			}
			id, err := engine.Ingest(ctx, path)
			if err != nil {
				fmt.Printf("  FAILED %s: %v\n", path, err)
				continue
			}
			fmt.Printf("  ingested %s (doc %d)\n", path, id)
		case <-done:
			fmt.Println("Stopped.")
			return
		}
	}
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("encoding output: %v", err)
	}
	fmt.Println(string(out))
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
