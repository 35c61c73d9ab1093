// Package router resolves the requested model and hands the request to the reasoner.
package router

import (
	"context"
	"errors"

	"adaptive-reasoner/internal/models"
	"adaptive-reasoner/internal/provider"
	"adaptive-reasoner/internal/queue"
	"adaptive-reasoner/internal/reasoner"
)

const ownedBy = "adaptive_reasoner"

// Router dispatches chat requests to the route configured for their model.
type Router struct {
	registry *provider.Registry
	reasoner *reasoner.Reasoner
}

// New constructs a router backed by the provided registry and reasoner.
func New(registry *provider.Registry, r *reasoner.Reasoner) (*Router, error) {
	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}
	if r == nil {
		return nil, errors.New("reasoner must not be nil")
	}
	return &Router{
		registry: registry,
		reasoner: r,
	}, nil
}

// Chat runs a non-streamed chat completion.
func (r *Router) Chat(ctx context.Context, req models.ChatCompletionRequest) (*models.ChatCompletion, error) {
	route, err := r.registry.LookupRoute(req.Model)
	if err != nil {
		return nil, err
	}
	return r.reasoner.Complete(ctx, req, route)
}

// ChatStream starts a streamed chat completion and returns its frame queue.
func (r *Router) ChatStream(ctx context.Context, req models.ChatCompletionRequest) (*queue.Queue[[]byte], error) {
	route, err := r.registry.LookupRoute(req.Model)
	if err != nil {
		return nil, err
	}
	return r.reasoner.Stream(ctx, req, route)
}

// Models lists every model name and alias clients may request.
func (r *Router) Models() models.ModelList {
	names := r.registry.Names()
	list := models.ModelList{Object: "list", Data: make([]models.ModelInfo, 0, len(names))}
	for _, name := range names {
		list.Data = append(list.Data, models.ModelInfo{
			ID:      name,
			Object:  "model",
			Created: 0,
			OwnedBy: ownedBy,
		})
	}
	return list
}
