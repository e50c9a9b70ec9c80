// Command arbordb-bench drives a short concurrent write/read workload
// against a fresh tree and reports how long each phase took. It exists to
// exercise the engine end to end, the way a developer would sanity-check
// a build before trusting it with real data.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arborkv/arbordb/core/btree"
	"github.com/arborkv/arbordb/pkg/logger"
)

func main() {
	numKeys := flag.Int("keys", 2000, "number of keys to write and then read back")
	writers := flag.Int("writers", 20, "max concurrent writer goroutines")
	readers := flag.Int("readers", 10, "max concurrent reader goroutines")
	branching := flag.Int("branching-factor", 64, "tree branching factor")
	pageSize := flag.Int("page-size", 4096, "page size in bytes")
	dataDir := flag.String("data-dir", "", "directory to hold the scratch database file (default: a new dir under os.TempDir)")
	flag.Parse()

	zlogger, err := logger.New(logger.Config{Level: "info", Format: "console"})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlogger.Sync()

	dir := *dataDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "arbordb-bench-"+uuid.NewString())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			zlogger.Fatal("failed to create scratch data dir", zap.Error(err))
		}
	}
	dbPath := filepath.Join(dir, "bench.db")

	tree, err := btree.Create(dbPath, *pageSize, *branching, []btree.FieldKind{btree.FieldVarchar},
		btree.WithLogger(zlogger.Named("btree")))
	if err != nil {
		zlogger.Fatal("failed to create tree", zap.Error(err))
	}
	defer tree.Close()

	zlogger.Sugar().Infof("writing %d keys at %s", *numKeys, dbPath)

	start := time.Now()
	if err := writeKeys(tree, *numKeys, *writers); err != nil {
		zlogger.Fatal("write phase failed", zap.Error(err))
	}
	writeElapsed := time.Since(start)

	start = time.Now()
	if err := readKeys(tree, *numKeys, *readers); err != nil {
		zlogger.Fatal("read phase failed", zap.Error(err))
	}
	readElapsed := time.Since(start)

	fmt.Printf("wrote %d keys in %s (%.0f keys/sec)\n", *numKeys, writeElapsed, float64(*numKeys)/writeElapsed.Seconds())
	fmt.Printf("read  %d keys in %s (%.0f keys/sec)\n", *numKeys, readElapsed, float64(*numKeys)/readElapsed.Seconds())
}

// writeKeys inserts numKeys keys into tree using up to maxWorkers
// concurrent goroutines and returns the first error any of them hits; the
// remaining inserts still run after an error.
func writeKeys(tree *btree.BPTree, numKeys, maxWorkers int) error {
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(maxWorkers)

	for i := 0; i < numKeys; i++ {
		i := i
		g.Go(func() error {
			key := int32(i)
			value := "value-" + strconv.Itoa(i)
			if err := tree.Insert(key, btree.Record{Payload: []byte(value)}); err != nil {
				return fmt.Errorf("insert key %d: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// readKeys searches for every one of numKeys keys using up to maxWorkers
// concurrent goroutines, failing on the first missing or mismatched key.
func readKeys(tree *btree.BPTree, numKeys, maxWorkers int) error {
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(maxWorkers)

	for i := 0; i < numKeys; i++ {
		i := i
		g.Go(func() error {
			key := int32(i)
			want := "value-" + strconv.Itoa(i)
			rec, found, err := tree.Search(key)
			if err != nil {
				return fmt.Errorf("search key %d: %w", key, err)
			}
			if !found {
				return fmt.Errorf("key %d: not found", key)
			}
			if string(rec.Payload) != want {
				return fmt.Errorf("key %d: got %q, want %q", key, rec.Payload, want)
			}
			return nil
		})
	}
	return g.Wait()
}
