package similarity

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jstall/pennywise/internal/common"
	"github.com/jstall/pennywise/internal/service"
)

// availability is the tri-state embedding availability flag.
type availability int

const (
	availabilityUnknown availability = iota
	availabilityYes
	availabilityNo
)

// Embedder generates embeddings through the generative backend, failing
// soft: any backend problem yields a nil vector rather than an error.
//
// Availability starts unknown, flips to true on the first successful embed,
// and flips permanently to false once the backend reports the model
// missing. A single self-provision (model pull) attempt is made before
// giving up on a missing model.
type Embedder struct {
	client    service.GenerativeClient
	modelName string

	mu        sync.Mutex
	state     availability
	pullTried bool
}

// NewEmbedder creates an embedder for the named embedding model.
func NewEmbedder(client service.GenerativeClient, modelName string) *Embedder {
	return &Embedder{
		client:    client,
		modelName: modelName,
	}
}

// Available reports whether embedding generation is believed to work.
// Unknown counts as available so the first call can settle the question.
func (e *Embedder) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state != availabilityNo
}

// Embed returns the vector for text, or nil when embeddings are
// unavailable. Network errors and timeouts are soft failures; only a
// missing model (after one pull attempt) disables embeddings for the
// process lifetime.
func (e *Embedder) Embed(ctx context.Context, text string) []float64 {
	if !e.Available() {
		return nil
	}

	vector, err := e.client.Embed(ctx, text)
	if err == nil {
		e.setState(availabilityYes)
		return vector
	}

	if errors.Is(err, common.ErrModelNotFound) {
		if e.tryPullOnce(ctx) {
			vector, err = e.client.Embed(ctx, text)
			if err == nil {
				e.setState(availabilityYes)
				return vector
			}
		}
		slog.Warn("Embedding model unavailable, disabling semantic stage",
			"model", e.modelName,
			"error", err)
		e.setState(availabilityNo)
		return nil
	}

	// Transient failure: leave the availability flag alone.
	slog.Debug("Embedding request failed", "error", err)
	return nil
}

// tryPullOnce attempts to self-provision the embedding model exactly once
// per process.
func (e *Embedder) tryPullOnce(ctx context.Context) bool {
	e.mu.Lock()
	if e.pullTried {
		e.mu.Unlock()
		return false
	}
	e.pullTried = true
	e.mu.Unlock()

	slog.Info("Embedding model missing, attempting pull", "model", e.modelName)
	if err := e.client.Pull(ctx, e.modelName); err != nil {
		slog.Warn("Model pull failed", "model", e.modelName, "error", err)
		return false
	}
	return true
}

func (e *Embedder) setState(s availability) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// A permanent "no" is never overturned within a process lifetime.
	if e.state == availabilityNo {
		return
	}
	e.state = s
}
