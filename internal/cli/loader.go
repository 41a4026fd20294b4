package cli

import (
	"errors"
	"fmt"

	"github.com/roach88/dbsync/internal/provider"
	"github.com/roach88/dbsync/internal/schema"
	"github.com/roach88/dbsync/internal/store"
)

// session is an open store plus the provider writing to it.
type session struct {
	store    *store.Store
	provider *provider.Provider
}

// openSession loads the configured schemas and opens the database.
// Failures are returned as ExitErrors carrying a CLI error code.
func openSession(opts *RootOptions, formatter *OutputFormatter, extra ...provider.Option) (*session, error) {
	cfg := opts.Config
	if len(cfg.Schemas) == 0 {
		return nil, formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "no schemas configured (use --schema or the config file)", nil)
	}

	sch, err := schema.Load(cfg.Schemas...)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, loadErrorCode(err), "failed to load schemas", err)
	}
	formatter.VerboseLog("Loaded %d entity type(s) from %v", len(sch.Names()), cfg.Schemas)

	st, err := store.Open(cfg.Database,
		store.WithSchema(sch),
		store.WithBusyTimeout(cfg.BusyTimeoutMS),
		store.WithLogger(opts.Logger),
	)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeStoreOpen, fmt.Sprintf("failed to open %s", cfg.Database), err)
	}

	popts := append([]provider.Option{provider.WithLogger(opts.Logger)}, extra...)
	return &session{
		store:    st,
		provider: provider.New(st, popts...),
	}, nil
}

// Close drains pending writes and releases the database.
func (s *session) Close() error {
	s.provider.Close()
	return s.store.Close()
}

func loadErrorCode(err error) string {
	var le *schema.LoadError
	if errors.As(err, &le) && le.Code == schema.ErrCodeNotFound {
		return ErrCodeNotFound
	}
	return ErrCodeLoadFailed
}
