package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxop/voxop/internal/config"
	"github.com/voxop/voxop/internal/log"
)

// Registry owns the model collaborators for a session: one language
// model and one vision model, each over its own transport.
type Registry struct {
	mu       sync.RWMutex
	language *LanguageModel
	vision   *VisionModel
	clients  []Client
}

// NewRegistry builds both collaborators from configuration.
func NewRegistry(cfg config.ProvidersConfig, logger *log.Logger) (*Registry, error) {
	langClient, err := newClient("language", cfg.Language)
	if err != nil {
		return nil, err
	}
	visionClient, err := newClient("vision", cfg.Vision)
	if err != nil {
		langClient.Close()
		return nil, err
	}

	return &Registry{
		language: NewLanguageModel(langClient, logger),
		vision:   NewVisionModel(visionClient, logger),
		clients:  []Client{langClient, visionClient},
	}, nil
}

// Language returns the transcript correction and command generation
// collaborator.
func (r *Registry) Language() *LanguageModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.language
}

// Vision returns the screenshot analysis collaborator.
func (r *Registry) Vision() *VisionModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vision
}

// Health probes both collaborators and returns the first failure.
// Called at session startup so an unreachable model server surfaces
// immediately instead of on the first task that needs it.
func (r *Registry) Health(ctx context.Context) error {
	if err := r.language.Health(ctx); err != nil {
		return fmt.Errorf("language collaborator: %w", err)
	}
	if err := r.vision.Health(ctx); err != nil {
		return fmt.Errorf("vision collaborator: %w", err)
	}
	return nil
}

// CloseAll releases every transport.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, c := range r.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", c.Name(), err)
		}
	}
	r.clients = nil
	return firstErr
}
