// Package factory builds the shared upstream transport and the route table from configuration.
package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"adaptive-reasoner/internal/config"
	"adaptive-reasoner/internal/provider"
)

const (
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// RegisterConfiguredRoutes converts every configured model into a route and stores it, with
// its aliases, in the registry.
func RegisterConfiguredRoutes(cfg config.Config, registry *provider.Registry) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	for _, name := range cfg.ModelNames() {
		route, err := cfg.Route(name)
		if err != nil {
			return fmt.Errorf("build route %q: %w", name, err)
		}
		if err := registry.RegisterRoute(route); err != nil {
			return fmt.Errorf("register route %q: %w", name, err)
		}
		log.Debug().
			Str("model", name).
			Str("upstream_model", route.ModelName).
			Str("api_url", route.APIURL).
			Int("reasoning_budget", route.ReasoningBudget).
			Str("rendering_mode", string(route.RenderingMode)).
			Msg("registered route")
	}

	if err := registry.RegisterAliases(cfg.Aliases); err != nil {
		return fmt.Errorf("register aliases: %w", err)
	}
	log.Info().Int("routes", registry.Len()).Int("aliases", len(cfg.Aliases)).Msg("route table ready")
	return nil
}

// NewHTTPClient returns the client shared by all upstream calls.
// There is no overall request timeout since streamed answers may run for minutes; the read
// timeout bounds the wait for response headers here and each body read in openai.Client.
func NewHTTPClient(cfg config.UpstreamConfig) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConns,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
	}
}
