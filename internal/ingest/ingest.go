// Package ingest loads medical documents from JSON, JSONL, markdown and
// text files into the vector store.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/progress"
	"github.com/ziadkadry99/econsult/internal/vectordb"
)

// DefaultBatchSize is the number of documents embedded per AddDocuments call.
const DefaultBatchSize = 64

// Persister is implemented by stores that keep their data in memory and
// write it out explicitly.
type Persister interface {
	Persist(ctx context.Context) error
}

// Options tunes an Ingester.
type Options struct {
	Concurrency int
	BatchSize   int
	ChunkSize   int
	MaxFileSize int64
}

// Result summarises a run.
type Result struct {
	Files     int
	Documents int
	Errors    []error
}

// Ingester replaces each file's documents in the store.
type Ingester struct {
	store    vectordb.VectorStore
	opts     Options
	reporter progress.Reporter
	logger   *zap.Logger
}

// New creates an Ingester. A nil reporter disables progress output.
func New(store vectordb.VectorStore, opts Options, reporter progress.Reporter, logger *zap.Logger) *Ingester {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if reporter == nil {
		reporter = progress.Nop{}
	}
	return &Ingester{store: store, opts: opts, reporter: reporter, logger: logger}
}

// Run ingests every file matched by patterns. Per-file failures are
// collected in Result.Errors; the returned error covers discovery and
// persistence only.
func (in *Ingester) Run(ctx context.Context, patterns []string) (*Result, error) {
	files, err := Discover(patterns, in.opts.MaxFileSize)
	if err != nil {
		return nil, err
	}
	result := &Result{Files: len(files)}
	if len(files) == 0 {
		return result, nil
	}

	in.reporter.Start(len(files))
	in.process(ctx, files, result)
	in.reporter.Finish()

	if p, ok := in.store.(Persister); ok {
		if err := p.Persist(ctx); err != nil {
			return result, fmt.Errorf("persisting vector store: %w", err)
		}
	}
	in.logger.Info("ingestion complete",
		zap.Int("files", result.Files),
		zap.Int("documents", result.Documents),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func (in *Ingester) process(ctx context.Context, files []File, result *Result) {
	sem := make(chan struct{}, in.opts.Concurrency)
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		processed int64
	)
	done := func(path string, docs int, err error) {
		mu.Lock()
		if err != nil {
			result.Errors = append(result.Errors, err)
		}
		result.Documents += docs
		count := atomic.AddInt64(&processed, 1)
		in.reporter.Update(int(count), path)
		mu.Unlock()
	}

	for _, f := range files {
		select {
		case <-ctx.Done():
			done(f.Path, 0, fmt.Errorf("ingest %s: %w", f.Path, ctx.Err()))
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(f File) {
			defer wg.Done()
			defer func() { <-sem }()
			n, err := in.ingestFile(ctx, f)
			if err != nil {
				in.logger.Warn("ingesting file", zap.String("path", f.Path), zap.Error(err))
			}
			done(f.Path, n, err)
		}(f)
	}
	wg.Wait()
}

func (in *Ingester) ingestFile(ctx context.Context, f File) (int, error) {
	docs, err := ParseFile(f.Path, in.opts.ChunkSize)
	if err != nil {
		return 0, err
	}
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = make(map[string]string)
		}
		docs[i].Metadata["content_hash"] = f.ContentHash
	}

	if err := in.store.DeleteBySource(ctx, f.Path); err != nil {
		return 0, fmt.Errorf("ingest %s: %w", f.Path, err)
	}
	for start := 0; start < len(docs); start += in.opts.BatchSize {
		end := min(start+in.opts.BatchSize, len(docs))
		if err := in.store.AddDocuments(ctx, docs[start:end]); err != nil {
			return start, fmt.Errorf("ingest %s: %w", f.Path, err)
		}
	}
	return len(docs), nil
}
