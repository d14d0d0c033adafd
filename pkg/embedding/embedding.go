// Package embedding keeps protein embeddings, computed once per receptor and
// shared by every chunk of runs docking against the receptor.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vsdock/vsdock/pkg/utils/logger"
	"github.com/vsdock/vsdock/pkg/utils/retry"
)

// ErrEmbedding is returned when an embedding could not be made.
var ErrEmbedding = errors.New("embedding failed")

const (
	Extension  = ".pt"
	lockSuffix = ".lock"
)

// Embedder computes the embedding of a receptor into the cache.
type Embedder interface {
	// Embed blocks until the embedding of receptor is written into the cache directory.
	Embed(ctx context.Context, receptor string) error
}

type EmbedFunc func(ctx context.Context, receptor string) error

func (f EmbedFunc) Embed(ctx context.Context, receptor string) error {
	return f(ctx, receptor)
}

// Cache is a directory of embeddings named after receptors.
type Cache struct {
	Dir string

	// PollInterval is how often a held lock is retried.
	PollInterval time.Duration

	logger *log.Logger
}

func NewCache(dir string, l *log.Logger) *Cache {
	return &Cache{Dir: dir, PollInterval: 2 * time.Second, logger: logger.Or(l)}
}

// Stem is the identity of a receptor: its file name without the extension.
func Stem(receptor string) string {
	base := filepath.Base(receptor)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PathOf returns where the embedding of receptor is stored.
func (c *Cache) PathOf(receptor string) string {
	return filepath.Join(c.Dir, Stem(receptor)+Extension)
}

// Lookup tells whether the embedding of receptor has been computed.
func (c *Cache) Lookup(receptor string) (string, bool, error) {
	p := c.PathOf(receptor)
	s, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return p, false, nil
	} else if err != nil {
		return p, false, err
	}
	if s.IsDir() {
		return p, false, fmt.Errorf("%w: %s is a directory", ErrEmbedding, p)
	}
	return p, s.Size() > 0, nil
}

// Ensure returns the path of the embedding of receptor, computing it with e when missing.
//
// Only one process computes an embedding at a time: others wait for the lock,
// then find the computed embedding.
func (c *Cache) Ensure(ctx context.Context, receptor string, e Embedder) (string, error) {
	p, ok, err := c.Lookup(receptor)
	if err != nil {
		return "", err
	}
	if ok {
		c.logger.Printf("reusing cached embedding %s", p)
		return p, nil
	}

	if err := os.MkdirAll(c.Dir, os.FileMode(0755)); err != nil {
		return "", err
	}
	unlock, err := lock(ctx, p+lockSuffix, retry.StaticBackoff(c.PollInterval))
	if err != nil {
		return "", fmt.Errorf("%w: cannot lock %s: %w", ErrEmbedding, p, err)
	}
	defer unlock()

	// someone may have computed it while we waited.
	if _, ok, err := c.Lookup(receptor); err != nil {
		return "", err
	} else if ok {
		c.logger.Printf("embedding %s has been computed by another run", p)
		return p, nil
	}

	c.logger.Printf("computing embedding of %s (this may take several minutes)", receptor)
	begin := time.Now()
	if err := e.Embed(ctx, receptor); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrEmbedding, receptor, err)
	}
	if _, ok, err := c.Lookup(receptor); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("%w: %s is not found after computation", ErrEmbedding, p)
	}
	c.logger.Printf("embedding %s is ready (%s)", p, time.Since(begin).Round(time.Second))
	return p, nil
}
