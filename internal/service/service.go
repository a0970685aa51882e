// Package service wires the store, resolvers, payload cache and list cache
// into the operations exposed by the API and the CLI.
package service

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/afm-api/internal/config"
	"github.com/sells-group/afm-api/internal/listcache"
	"github.com/sells-group/afm-api/internal/payload"
	"github.com/sells-group/afm-api/internal/resolve"
	"github.com/sells-group/afm-api/internal/store"
)

// ErrInvalidArgument is returned for malformed request parameters.
var ErrInvalidArgument = eris.New("service: invalid argument")

// Service holds the per-process state. Create one with New at startup and
// Close it at shutdown.
type Service struct {
	defaultTool string

	store    *store.Store
	resolver *resolve.Resolver
	payloads *payload.Cache
	lists    *listcache.Cache
	log      *zap.Logger

	closeOnce sync.Once
}

// Option configures a Service.
type Option func(*options)

type options struct {
	listOpts []listcache.Option
}

// WithListCacheOptions passes options through to the list cache.
func WithListCacheOptions(opts ...listcache.Option) Option {
	return func(o *options) { o.listOpts = append(o.listOpts, opts...) }
}

// New builds a Service over fs using the data and payload settings of cfg.
func New(cfg *config.Config, fs afero.Fs, opts ...Option) (*Service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	st := store.New(fs, cfg.Data.Root, cfg.Data.Tools)
	res := resolve.NewResolver(st, resolve.WithDuplicateAudit(cfg.Data.AuditDuplicates))

	payloads, err := payload.NewCache(fs, cfg.Payload.CacheEntries)
	if err != nil {
		return nil, eris.Wrap(err, "service: payload cache")
	}

	s := &Service{
		defaultTool: cfg.Data.DefaultTool,
		store:       st,
		resolver:    res,
		payloads:    payloads,
		lists:       listcache.New(st, res, o.listOpts...),
		log:         zap.L().With(zap.String("component", "service")),
	}
	s.log.Info("service initialized",
		zap.String("root", st.Root()),
		zap.Strings("tools", st.Tools()),
		zap.Bool("audit_duplicates", cfg.Data.AuditDuplicates),
	)
	return s, nil
}

// Close releases cached state. It is safe to call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.payloads.Purge()
		s.log.Info("service closed")
	})
	return nil
}

// Store returns the underlying store.
func (s *Service) Store() *store.Store { return s.store }

// Resolver returns the file resolver.
func (s *Service) Resolver() *resolve.Resolver { return s.resolver }

// Tools returns the configured tool names.
func (s *Service) Tools() []string { return s.store.Tools() }

// ToolName returns name, or the default tool when name is blank.
func (s *Service) ToolName(name string) string {
	if strings.TrimSpace(name) == "" {
		return s.defaultTool
	}
	return name
}

// Tool returns the layout for name, or for the default tool when blank.
func (s *Service) Tool(name string) (store.Tool, error) {
	return s.store.Tool(s.ToolName(name))
}

// checkFilename rejects a client supplied measurement file name that is
// not a bare file name.
func checkFilename(filename string) error {
	if err := resolve.CheckName(filename); err != nil {
		return eris.Wrapf(ErrInvalidArgument, "measurement file name: %v", err)
	}
	return nil
}

// Files returns the cached measurement list of a tool.
func (s *Service) Files(tool string) ([]listcache.Entry, error) {
	return s.lists.Load(s.ToolName(tool))
}

// Search filters the cached measurement list of a tool.
func (s *Service) Search(tool, query string) ([]listcache.Entry, error) {
	entries, err := s.Files(tool)
	if err != nil {
		return nil, err
	}
	return listcache.Search(entries, query), nil
}

// Artifact returns the persisted list artifact of a tool.
func (s *Service) Artifact(tool string) (*listcache.Artifact, error) {
	return s.lists.Read(s.ToolName(tool))
}

// Rebuild regenerates the list artifact of a tool. Decoded payloads are
// dropped so the next requests see the current files.
func (s *Service) Rebuild(tool string) (listcache.Result, error) {
	res, err := s.lists.Rebuild(s.ToolName(tool))
	if err == nil {
		s.payloads.Purge()
	}
	return res, err
}

// ToolRebuild is the outcome of one tool's rebuild in RebuildAll.
type ToolRebuild struct {
	listcache.Result
	Error string `json:"error,omitempty"`
}

// RebuildAll rebuilds every configured tool concurrently. A tool without
// survivors is reported in its result; any other failure is returned.
func (s *Service) RebuildAll(ctx context.Context) ([]ToolRebuild, error) {
	tools := s.store.Tools()
	out := make([]ToolRebuild, len(tools))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range tools {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.lists.Rebuild(name)
			out[i] = ToolRebuild{Result: res}
			if err == nil {
				return nil
			}
			out[i].Error = err.Error()
			if eris.Is(err, listcache.ErrNoSurvivors) {
				return nil
			}
			return eris.Wrapf(err, "rebuild %s", name)
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	s.payloads.Purge()
	return out, nil
}
