package cli

import (
	"context"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depsync/pkg/cache"
	"github.com/matzehuels/depsync/pkg/classify"
	"github.com/matzehuels/depsync/pkg/manifest"
	"github.com/matzehuels/depsync/pkg/registry"
)

// rootOpts holds the persistent flags shared by every command.
type rootOpts struct {
	path    string // project root (defaults to the working directory)
	config  string // alternate config file path
	refresh bool   // bypass the registry response cache
	noCache bool   // disable the response cache entirely
}

// session bundles everything a command needs: the loaded manifest, the
// governing workspace manifest (if any), the classification config and a
// configured registry resolver.
type session struct {
	root      string
	logger    *log.Logger
	cfg       *classify.Config
	manifest  *manifest.Manifest
	workspace *manifest.Manifest // nil outside a workspace
	resolver  *registry.CratesClient
}

// newSession loads the manifest, workspace context and config for the
// project at opts.path. Manifest and config parse failures are fatal;
// cache setup failures degrade to an uncached client with a warning.
func newSession(ctx context.Context, opts *rootOpts) (*session, error) {
	logger := loggerFromContext(ctx)

	root := opts.path
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	m, err := manifest.Load(filepath.Join(root, manifest.FileName))
	if err != nil {
		return nil, err
	}

	var ws *manifest.Manifest
	if !m.IsWorkspace {
		parent, found, err := manifest.LoadWorkspace(filepath.Dir(root))
		if err != nil {
			return nil, err
		}
		if found {
			ws = parent
			logger.Debugf("workspace root: %s", filepath.Dir(ws.Path))
		}
	}

	var cfg *classify.Config
	if opts.config != "" {
		cfg, err = classify.LoadConfig(opts.config)
	} else {
		cfg, err = classify.LoadDefaultConfig(root)
	}
	if err != nil {
		return nil, err
	}

	var backend cache.Cache = cache.NewNullCache()
	if !opts.noCache {
		dir, err := cache.DefaultDir()
		if err == nil {
			if fc, err := cache.NewFileCache(dir); err == nil {
				backend = fc
			} else {
				logger.Warnf("response cache disabled: %v", err)
			}
		} else {
			logger.Warnf("response cache disabled: %v", err)
		}
	}

	return &session{
		root:      root,
		logger:    logger,
		cfg:       cfg,
		manifest:  m,
		workspace: ws,
		resolver: registry.NewCratesClient(registry.Options{
			Cache:   backend,
			Refresh: opts.refresh,
		}),
	}, nil
}
