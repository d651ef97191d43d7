// Command vecgraph-demo exercises the embeddable engine end to end
// against a local backend (one file per object, or a single bbolt
// database file): ingest a handful of nouns, filter by metadata, and
// run a vector search. Not a CLI surface for the store (spec's
// Non-goals exclude that) — just a runnable example of wiring an
// Engine up, a smoke check rather than a product entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/vecgraph/vecgraph"
	"github.com/vecgraph/vecgraph/internal/entitystore"
	"github.com/vecgraph/vecgraph/internal/metaindex"
	"github.com/vecgraph/vecgraph/internal/objstore"
	"github.com/vecgraph/vecgraph/pkg/version"
)

func main() {
	dir := flag.String("dir", "", "directory to store data under (default: a temp dir)")
	backendKind := flag.String("backend", "localfs", "local backend to use: localfs or bolt")
	flag.Parse()

	if err := run(*dir, *backendKind); err != nil {
		fmt.Fprintln(os.Stderr, "vecgraph-demo:", err)
		os.Exit(1)
	}
}

// openBackend picks between the two local Store implementations: one
// file per object (LocalFSStore) or one bbolt database file (BoltStore).
func openBackend(kind, dir string) (objstore.Store, error) {
	switch kind {
	case "bolt":
		return objstore.NewBoltStore(filepath.Join(dir, "vecgraph.bolt"))
	case "localfs", "":
		return objstore.NewLocalFSStore(dir)
	default:
		return nil, fmt.Errorf("unknown backend %q (want localfs or bolt)", kind)
	}
}

func run(dir, backendKind string) error {
	fmt.Println(version.String())

	if dir == "" {
		tmp, err := os.MkdirTemp("", "vecgraph-demo-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	backend, err := openBackend(backendKind, dir)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}

	ctx := context.Background()
	cfg := vecgraph.DefaultEngineConfig(backend)
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	engine, err := vecgraph.NewEngine(ctx, cfg)
	if err != nil {
		return fmt.Errorf("new engine: %w", err)
	}
	defer engine.Close(ctx)

	concepts := []struct {
		name  string
		topic string
		vec   []float32
	}{
		{"gravity", "physics", []float32{0.9, 0.1, 0.0}},
		{"entropy", "physics", []float32{0.8, 0.2, 0.0}},
		{"mitosis", "biology", []float32{0.0, 0.1, 0.9}},
	}

	for _, c := range concepts {
		id := uuid.New()
		if err := engine.AddNoun(ctx, entitystore.Noun{
			ID:     id,
			Type:   "Concept",
			Vector: c.vec,
			Metadata: map[string]interface{}{
				"name":  c.name,
				"topic": c.topic,
			},
		}); err != nil {
			return fmt.Errorf("add noun %q: %w", c.name, err)
		}
		fmt.Printf("added %-10s id=%s\n", c.name, id)
	}

	if err := engine.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	physicsIDs, err := engine.Query(ctx, metaindex.Eq("topic", "physics"))
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	fmt.Printf("physics concepts: %d\n", len(physicsIDs))

	results, err := engine.VectorSearch(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		return fmt.Errorf("vector search: %w", err)
	}
	for _, r := range results {
		fmt.Printf("nearest: id=%s distance=%.4f score=%.4f\n", r.ID, r.Distance, r.Score)
	}

	stats := engine.Stats()
	fmt.Printf("stats: nouns=%d index_entries=%d live=%d\n",
		stats.Counts.TotalNounCount, stats.TotalIndexEntries, stats.LiveEntities)

	return nil
}
