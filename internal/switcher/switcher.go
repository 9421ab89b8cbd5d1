package switcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/I2S9/sql-query-optimization-benchmarking/internal/db"
	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

// AdminConn is the slice of the administrative session the switcher
// needs: DDL execution and catalog-metadata inspection.
type AdminConn interface {
	Exec(ctx context.Context, sql string) error
	IndexNames(ctx context.Context) ([]string, error)
}

// VerificationError reports a mismatch between the index set an
// IndexConfig declares and what the database catalog actually shows.
type VerificationError struct {
	Config  string
	Missing []string // declared but absent
	Extra   []string // declared reverted but still present
}

func (e *VerificationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing indexes: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, fmt.Sprintf("lingering indexes: %s", strings.Join(e.Extra, ", ")))
	}
	return fmt.Sprintf("index config %q verification failed: %s", e.Config, strings.Join(parts, "; "))
}

// Switcher applies and reverts named index configurations against the
// live schema over the dedicated administrative connection, so DDL cost
// can never leak into query timing.
type Switcher struct {
	admin  AdminConn
	logger zerolog.Logger
}

// New creates a Switcher bound to the administrative connection.
func New(admin AdminConn, logger zerolog.Logger) *Switcher {
	return &Switcher{
		admin:  admin,
		logger: logger.With().Str("component", "index-switcher").Logger(),
	}
}

// Apply runs the configuration's apply DDL and verifies every declared
// index is present afterwards. Creating an index that already exists is
// a no-op, matching CREATE INDEX IF NOT EXISTS semantics, so Apply is
// idempotent.
func (s *Switcher) Apply(ctx context.Context, cfg models.IndexConfig) error {
	for _, stmt := range cfg.Apply {
		if err := s.admin.Exec(ctx, stmt); err != nil {
			if db.IsDuplicateObject(err) {
				s.logger.Debug().Str("config", cfg.Name).Str("ddl", stmt).Msg("Index already exists, skipping")
				continue
			}
			return fmt.Errorf("applying index config %q: %w", cfg.Name, err)
		}
	}

	if err := s.verify(ctx, cfg, true); err != nil {
		return err
	}

	s.logger.Info().
		Str("config", cfg.Name).
		Int("statements", len(cfg.Apply)).
		Msg("Index configuration applied")
	return nil
}

// Revert runs the configuration's revert DDL and verifies every
// declared index is absent afterwards. Dropping an index that does not
// exist is a no-op.
func (s *Switcher) Revert(ctx context.Context, cfg models.IndexConfig) error {
	for _, stmt := range cfg.Revert {
		if err := s.admin.Exec(ctx, stmt); err != nil {
			if db.IsUndefinedObject(err) {
				s.logger.Debug().Str("config", cfg.Name).Str("ddl", stmt).Msg("Index already absent, skipping")
				continue
			}
			return fmt.Errorf("reverting index config %q: %w", cfg.Name, err)
		}
	}

	if err := s.verify(ctx, cfg, false); err != nil {
		return err
	}

	s.logger.Info().
		Str("config", cfg.Name).
		Int("statements", len(cfg.Revert)).
		Msg("Index configuration reverted")
	return nil
}

// Status lists the indexes currently present in the public schema.
func (s *Switcher) Status(ctx context.Context) ([]string, error) {
	return s.admin.IndexNames(ctx)
}

// verify checks the declared index set against pg_indexes.
func (s *Switcher) verify(ctx context.Context, cfg models.IndexConfig, wantPresent bool) error {
	if len(cfg.Indexes) == 0 {
		return nil
	}

	names, err := s.admin.IndexNames(ctx)
	if err != nil {
		return fmt.Errorf("verifying index config %q: %w", cfg.Name, err)
	}

	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}

	verr := &VerificationError{Config: cfg.Name}
	for _, idx := range cfg.Indexes {
		if wantPresent && !present[idx] {
			verr.Missing = append(verr.Missing, idx)
		}
		if !wantPresent && present[idx] {
			verr.Extra = append(verr.Extra, idx)
		}
	}

	if len(verr.Missing) > 0 || len(verr.Extra) > 0 {
		return verr
	}
	return nil
}
