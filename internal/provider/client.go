// Package provider holds the model collaborator clients: the language
// model used for transcript correction and shell command generation,
// and the vision model used to locate UI elements in screenshots.
// Both speak to local or remote inference servers over HTTP.
package provider

import (
	"context"
	stderrors "errors"
	"net"

	"github.com/voxop/voxop/internal/config"
	"github.com/voxop/voxop/internal/errors"
)

// Client is a low-level completion transport. The language and vision
// models wrap a Client with their prompt and output contracts.
type Client interface {
	// Complete sends one prompt and returns the model's reply.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Health reports nil when the collaborator is reachable and ready.
	Health(ctx context.Context) error

	// Name identifies the collaborator in logs and errors.
	Name() string

	// Close releases client resources.
	Close() error
}

// newClient builds a transport from its configuration.
func newClient(name string, cfg config.ProviderConfig) (Client, error) {
	switch cfg.Type {
	case "llamacpp", "":
		return newLlamaCppClient(name, cfg), nil
	case "openai":
		return newOpenAIClient(name, cfg), nil
	default:
		return nil, errors.New(errors.ErrCodeProviderNotFound,
			"unknown provider type: "+cfg.Type).
			WithSuggestion("Use one of: llamacpp, openai")
	}
}

// classifyTransportErr maps transport failures onto the collaborator
// error taxonomy: deadline problems become timeouts, everything else
// becomes unavailability, which the router retries with backoff.
func classifyTransportErr(name string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrCodeProviderTimeout,
			"collaborator "+name+" timed out", err).
			WithSuggestion("Increase the provider timeout in the config").
			WithSuggestion("Check whether the model server is overloaded")
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrap(errors.ErrCodeProviderTimeout,
			"collaborator "+name+" timed out", err)
	}
	return errors.NewCollaboratorUnavailableError(name, err)
}
