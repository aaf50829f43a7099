// Package service wires C1-C5 into the single value the process
// entrypoint owns: Config store, LLM provider, Protocol Engine, and
// Chat Buffer. Grounded on the teacher's IntegrationClient.Start()/
// Stop() shape (src/nIntegrationClient.go) — construct the backend,
// start it in a goroutine, wire callbacks, both return error from
// Start.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/recassity/mgba-bridge/internal/chatbuffer"
	"github.com/recassity/mgba-bridge/internal/config"
	"github.com/recassity/mgba-bridge/internal/llm"
	"github.com/recassity/mgba-bridge/internal/protocol"
)

// Service owns every long-lived component of the core control loop.
type Service struct {
	cfgStore *config.Store
	buf      *chatbuffer.Buffer
	prompt   *llm.PromptTemplate
	server   *protocol.Server

	cancel context.CancelFunc
	errCh  chan error
}

// Options configures a Service at construction time.
type Options struct {
	ConfigDBPath string
	ListenAddr   string // empty uses protocol.DefaultAddr
}

// New opens the config store, builds the provider for the currently
// configured llm_provider, loads the prompt template, and assembles
// the Protocol Engine. It does not start listening — call Start.
func New(opts Options) (*Service, error) {
	store, err := config.Open(opts.ConfigDBPath)
	if err != nil {
		return nil, fmt.Errorf("service: open config store: %w", err)
	}

	snap, err := store.Snapshot()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("service: read initial config snapshot: %w", err)
	}

	provider := buildProvider(snap)

	var prompt *llm.PromptTemplate
	if snap.PromptTemplatePath != "" {
		prompt, err = llm.LoadPromptTemplate(snap.PromptTemplatePath)
		if err != nil {
			log.Warn().Err(err).Str("path", snap.PromptTemplatePath).Msg("service: failed to load prompt template, cycles will report bad_response until one is configured")
		}
	}

	buf := chatbuffer.New()

	addr := opts.ListenAddr
	if addr == "" {
		addr = protocol.DefaultAddr
	}
	server := protocol.NewServer(addr, store, provider, buf, prompt)

	return &Service{cfgStore: store, buf: buf, prompt: prompt, server: server}, nil
}

// buildProvider selects the Provider implementation named by
// llm_provider (spec.md §4.1), dispatched once at service start per
// DESIGN NOTES' "dynamic dispatch replaced by small interfaces."
func buildProvider(snap config.Snapshot) llm.Provider {
	switch snap.LLMProvider {
	case "openai":
		return llm.NewOpenAIProvider(snap.APIKey, snap.ModelName)
	default:
		return llm.NewAnthropicProvider(snap.APIKey, snap.ModelName)
	}
}

// Start runs the TCP listener in the background and returns once it
// is bound (or has failed to bind — spec.md §7's Fatal kind, surfaced
// to the caller rather than retried). Call Stop to shut down.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.errCh = make(chan error, 1)

	go func() {
		s.errCh <- s.server.Start(ctx)
	}()

	for i := 0; i < 200; i++ {
		if s.server.Addr() != nil {
			return nil
		}
		select {
		case err := <-s.errCh:
			s.errCh <- err // let Wait() observe the same terminal error
			return err
		case <-time.After(5 * time.Millisecond):
		}
	}
	return fmt.Errorf("service: timed out waiting for listener to bind")
}

// Wait blocks until the listener stops, returning its terminal error
// (nil on a clean Stop).
func (s *Service) Wait() error {
	return <-s.errCh
}

// Stop shuts down the listener and any active session, then releases
// the config store handle.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.prompt != nil {
		s.prompt.Close()
	}
	return s.cfgStore.Close()
}

// Buffer exposes the Chat Buffer for the out-of-scope HTTP poll
// endpoint to share in-process.
func (s *Service) Buffer() *chatbuffer.Buffer {
	return s.buf
}

// ConfigStore exposes the store for the out-of-scope HTTP write
// endpoints to share the same bbolt handle.
func (s *Service) ConfigStore() *config.Store {
	return s.cfgStore
}
