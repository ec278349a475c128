// Package sink hands finished topic groups to downstream consumers.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"topicwire/internal/core"
)

// Run identifies one processed batch.
type Run struct {
	RunID     string    `json:"run_id"`
	BatchID   string    `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is the payload emitted for each topic group.
type Message struct {
	Run
	Rank  int             `json:"rank"`
	Total int             `json:"total"`
	Group core.TopicGroup `json:"group"`
}

// Publisher emits the topic groups of one run.
type Publisher interface {
	Publish(ctx context.Context, run Run, groups []core.TopicGroup) error
	Close() error
}

// Messages builds one message per group, ranked in the given order.
func Messages(run Run, groups []core.TopicGroup) []Message {
	out := make([]Message, len(groups))
	for i, g := range groups {
		out[i] = Message{Run: run, Rank: i + 1, Total: len(groups), Group: g}
	}
	return out
}

// Document is the JSON written by FilePublisher.
type Document struct {
	Run
	Groups []core.TopicGroup `json:"groups"`
}

// FilePublisher writes each run as an indented JSON document. When path is
// a directory (existing, or ending in a separator) every run gets its own
// file named after the run ID; otherwise the single file is overwritten.
type FilePublisher struct {
	path string
	mu   sync.Mutex
}

func NewFilePublisher(path string) *FilePublisher {
	return &FilePublisher{path: path}
}

// Target returns the file a run will be written to.
func (f *FilePublisher) Target(run Run) string {
	if strings.HasSuffix(f.path, string(os.PathSeparator)) || strings.HasSuffix(f.path, "/") {
		return filepath.Join(f.path, "topic-groups-"+run.RunID+".json")
	}
	if info, err := os.Stat(f.path); err == nil && info.IsDir() {
		return filepath.Join(f.path, "topic-groups-"+run.RunID+".json")
	}
	return f.path
}

func (f *FilePublisher) Publish(ctx context.Context, run Run, groups []core.TopicGroup) error {
	if groups == nil {
		groups = []core.TopicGroup{}
	}
	data, err := json.MarshalIndent(Document{Run: run, Groups: groups}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal topic groups: %w", err)
	}

	target := f.Target(run)
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return nil
}

func (f *FilePublisher) Close() error { return nil }

// MultiPublisher fans a run out to several publishers. Every publisher is
// attempted; failures are joined.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, run Run, groups []core.TopicGroup) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, run, groups); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
