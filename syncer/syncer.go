// Package syncer mirrors stored links: it resolves a link id through the
// link store and runs a crawl session that writes under <syncroot>/<id>.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lukemcguire/linksync/config"
	"github.com/lukemcguire/linksync/crawler"
	"github.com/lukemcguire/linksync/linkstore"
	"github.com/lukemcguire/linksync/mirror"
	"github.com/lukemcguire/linksync/result"
)

var (
	// ErrSeedLookup is returned when the link to sync cannot be resolved.
	ErrSeedLookup = errors.New("seed lookup failed")

	// ErrInvalidLinkID is returned for ids that cannot name a directory.
	ErrInvalidLinkID = errors.New("invalid link id")
)

// LinkError is the failure of one link's sync. Err wraps ErrInvalidLinkID,
// ErrSeedLookup or the session error.
type LinkError struct {
	ID  string
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("sync link %s: %v", e.ID, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// LinkSource resolves link ids. *linkstore.Client satisfies it.
type LinkSource interface {
	GetLink(ctx context.Context, id string) (linkstore.Link, error)
}

// Syncer runs mirror sessions for stored links.
type Syncer struct {
	Links    LinkSource
	SyncRoot string
	Config   *config.Config // nil uses config.NewConfig defaults
	Logger   *slog.Logger

	// Progress receives the events of every session when set.
	Progress chan<- crawler.Event

	// OnSession is called with each session before it runs.
	OnSession func(id string, s *crawler.Session)
}

// Sync mirrors the link with the given id and returns the session report.
// It fails only when the link cannot be resolved or its URL cannot seed a
// crawl; per-item failures are recorded in the report. Errors are
// *LinkError.
func (s *Syncer) Sync(ctx context.Context, id string) (*result.Report, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return nil, &LinkError{ID: id, Err: ErrInvalidLinkID}
	}
	logger := s.logger().With("link_id", id)

	link, err := s.Links.GetLink(ctx, id)
	if err != nil {
		return nil, &LinkError{ID: id, Err: fmt.Errorf("%w: %w", ErrSeedLookup, err)}
	}
	logger.Info("syncing link", "url", link.URL)

	root := filepath.Join(s.SyncRoot, id)
	session, err := crawler.NewSession(
		s.config().CrawlerConfig(link.URL, logger),
		mirror.NewDirWriter(root),
		s.Progress,
	)
	if err != nil {
		return nil, &LinkError{ID: id, Err: err}
	}
	if s.OnSession != nil {
		s.OnSession(id, session)
	}

	rep, err := session.Run(ctx)
	if err != nil {
		return nil, &LinkError{ID: id, Err: err}
	}
	rep.LinkID = id
	logger.Info("finished syncing link", "url", link.URL, "outcome", rep.Outcome, "root", root)
	return rep, nil
}

// SyncAll mirrors several links, at most Config.Sync.Parallel at once.
// Reports are returned in the order of ids; an id whose sync failed has a nil
// report and its error is joined into the returned error.
func (s *Syncer) SyncAll(ctx context.Context, ids []string) ([]*result.Report, error) {
	reports := make([]*result.Report, len(ids))
	errs := make([]error, len(ids))

	parallel := s.config().Sync.Parallel
	if parallel <= 0 {
		parallel = config.DefaultParallel
	}

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, id := range ids {
		g.Go(func() error {
			reports[i], errs[i] = s.Sync(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	return reports, errors.Join(errs...)
}

func (s *Syncer) config() *config.Config {
	if s.Config == nil {
		return config.NewConfig()
	}
	return s.Config
}

func (s *Syncer) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}
