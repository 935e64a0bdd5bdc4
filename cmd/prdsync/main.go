// Command prdsync is the local CLI: it runs the document pipeline directly
// against the configured store, without the server/worker pair.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"prdsync.app/prdsync/common/id"
	"prdsync.app/prdsync/common/llm"
	"prdsync.app/prdsync/common/logger"
	"prdsync.app/prdsync/core/config"
	"prdsync.app/prdsync/internal/orchestrator"
	"prdsync.app/prdsync/internal/planner"
	"prdsync.app/prdsync/internal/significance"
	"prdsync.app/prdsync/internal/store"
)

const usage = `Usage: prdsync <command> [arguments]

Commands:
  process <path> [--create]   run the pipeline for a document
  list                        list tracked work items
  show <id>                   print one work item with comments
  snapshot <id>               print an item's latest document snapshot
  diff <id> <path>            diff an item's snapshot against a document
  clear                       delete all items and snapshots (file store only)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeCLI)
	if err != nil {
		fatal("loading config: %v", err)
	}
	logger.Setup(cfg)
	if err := id.Init(cfg.NodeID); err != nil {
		fatal("initializing id generator: %v", err)
	}

	itemStore, err := store.FromConfig(cfg)
	if err != nil {
		fatal("building item store: %v", err)
	}

	switch os.Args[1] {
	case "process":
		runProcess(ctx, cfg, itemStore, os.Args[2:])
	case "list":
		runList(ctx, itemStore)
	case "show":
		runShow(ctx, itemStore, os.Args[2:])
	case "snapshot":
		runSnapshot(ctx, itemStore, os.Args[2:])
	case "diff":
		runDiff(ctx, itemStore, os.Args[2:])
	case "clear":
		runClear(ctx, itemStore)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

func runProcess(ctx context.Context, cfg config.Config, itemStore store.WorkItemStore, args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	forceCreate := fs.Bool("create", false, "force fresh-create mode even when items exist")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fatal("process requires exactly one document path")
	}

	oracle, err := llm.New(llm.Config{
		APIKey:  cfg.Oracle.APIKey,
		BaseURL: cfg.Oracle.BaseURL,
		Model:   cfg.Oracle.Model,
	})
	if err != nil {
		fatal("building oracle client: %v", err)
	}

	p := planner.New(oracle, significance.New(cfg.Pipeline.MinLineLength))
	orch := orchestrator.New(itemStore, p, planner.NewExtractor(oracle), cfg.RunDir)

	summary, err := orch.ProcessDocument(ctx, fs.Arg(0), *forceCreate)
	if err != nil {
		fatal("run failed: %v", err)
	}

	fmt.Printf("run %s (%s): %d updated, %d created, %d unchanged\n",
		summary.RunID, summary.Mode, summary.Updated, summary.Created, summary.Unchanged)
	if summary.Rationale != "" {
		fmt.Printf("  %s\n", summary.Rationale)
	}
}

func runList(ctx context.Context, itemStore store.WorkItemStore) {
	items, err := itemStore.List(ctx, store.Filter{})
	if err != nil {
		fatal("listing items: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tTITLE\tLABELS")
	for _, item := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\n", item.ID, item.State, item.Title, item.Labels)
	}
	w.Flush()
}

func runShow(ctx context.Context, itemStore store.WorkItemStore, args []string) {
	itemID := parseID(args)
	item, err := itemStore.Get(ctx, itemID)
	if err != nil {
		fatal("getting item %d: %v", itemID, err)
	}

	fmt.Printf("# %d: %s [%s]\n", item.ID, item.Title, item.State)
	if len(item.Labels) > 0 {
		fmt.Printf("labels: %v\n", item.Labels)
	}
	fmt.Printf("\n%s\n", item.Body)
	for _, comment := range item.Comments {
		fmt.Printf("\n--- %s at %s ---\n%s\n", comment.Author, comment.CreatedAt.Format("2006-01-02 15:04:05"), comment.Body)
	}
}

func runSnapshot(ctx context.Context, itemStore store.WorkItemStore, args []string) {
	snapshots, ok := itemStore.(store.SnapshotStore)
	if !ok {
		fatal("the configured store backend does not support snapshots")
	}

	itemID := parseID(args)
	snapshot, err := snapshots.GetSnapshot(ctx, itemID)
	if err != nil {
		fatal("getting snapshot for item %d: %v", itemID, err)
	}

	fmt.Printf("item %d, document %s, captured %s, hash %s\n\n",
		snapshot.ItemID, snapshot.DocumentPath, snapshot.CapturedAt.Format("2006-01-02 15:04:05"), snapshot.Hash)
	fmt.Println(snapshot.Content)
}

func runDiff(ctx context.Context, itemStore store.WorkItemStore, args []string) {
	snapshots, ok := itemStore.(store.SnapshotStore)
	if !ok {
		fatal("the configured store backend does not support snapshots")
	}
	if len(args) != 2 {
		fatal("diff requires an item id and a document path")
	}

	itemID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fatal("invalid item id %q", args[0])
	}
	content, err := os.ReadFile(args[1])
	if err != nil {
		fatal("reading document: %v", err)
	}

	rendered, err := snapshots.SnapshotDiff(ctx, itemID, string(content))
	if err != nil {
		fatal("diffing item %d: %v", itemID, err)
	}
	fmt.Print(rendered)
}

func runClear(ctx context.Context, itemStore store.WorkItemStore) {
	fileStore, ok := itemStore.(*store.FileStore)
	if !ok {
		fatal("clear is only supported for the file store backend")
	}
	if err := fileStore.Clear(ctx); err != nil {
		fatal("clearing store: %v", err)
	}
	fmt.Println("store cleared")
}

func parseID(args []string) int64 {
	if len(args) != 1 {
		fatal("expected exactly one item id")
	}
	itemID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fatal("invalid item id %q", args[0])
	}
	return itemID
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
