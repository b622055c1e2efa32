// Package fetch obtains local working copies of remote repositories.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"go.uber.org/zap"
)

// Sentinel errors for fetch operations.
var (
	// ErrInvalidRepositoryURL is returned for malformed or unsupported URLs.
	// Validation happens before any network call.
	ErrInvalidRepositoryURL = errors.New("invalid repository URL")

	// ErrFetchFailed is returned when a repository cannot be cloned:
	// unreachable host, repository not found, or authentication required.
	ErrFetchFailed = errors.New("failed to fetch repository")
)

// repoPathPattern requires at least an owner and a repository segment.
var repoPathPattern = regexp.MustCompile(`^/[\w.-]+/[\w.-]+/?$`)

// Config holds fetcher settings.
type Config struct {
	// WorkDir is the base directory for per-session working copies.
	WorkDir string

	// Depth is the shallow clone depth. Bounds indexing cost on large repos.
	Depth int

	// Timeout bounds a single clone operation. Zero means no extra bound
	// beyond the caller's context.
	Timeout time.Duration
}

// Fetcher clones public repositories into session-scoped working directories.
type Fetcher struct {
	config Config
	logger *zap.Logger
}

// NewFetcher creates a new Fetcher.
func NewFetcher(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work dir is required")
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir %s: %w", cfg.WorkDir, err)
	}
	return &Fetcher{config: cfg, logger: logger}, nil
}

// ValidateURL checks that rawURL denotes a clonable public repository URL.
// It performs no network I/O.
func ValidateURL(rawURL string) error {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidRepositoryURL)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRepositoryURL, err)
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRepositoryURL, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidRepositoryURL)
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials in URL are not supported", ErrInvalidRepositoryURL)
	}
	if !repoPathPattern.MatchString(strings.TrimSuffix(u.Path, ".git")) {
		return fmt.Errorf("%w: path %q does not name a repository", ErrInvalidRepositoryURL, u.Path)
	}

	return nil
}

// Fetch clones the repository at repoURL into a directory owned by sessionID.
//
// The clone is shallow (Config.Depth) and single-branch. The returned path is
// the repository root; it is reclaimed via Cleanup when the session ends.
func (f *Fetcher) Fetch(ctx context.Context, sessionID, repoURL string) (string, error) {
	if err := ValidateURL(repoURL); err != nil {
		return "", err
	}

	dir := f.SessionDir(sessionID)

	// A stale working copy from a duplicate submission is replaced wholesale.
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clearing session dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating session dir %s: %w", dir, err)
	}

	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}

	f.logger.Info("cloning repository",
		zap.String("url", repoURL),
		zap.String("session_id", sessionID),
		zap.Int("depth", f.config.Depth),
	)

	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          repoURL,
		Depth:        f.config.Depth,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", classifyCloneError(repoURL, err)
	}

	return dir, nil
}

// Cleanup removes the working copy owned by sessionID.
func (f *Fetcher) Cleanup(sessionID string) error {
	return os.RemoveAll(f.SessionDir(sessionID))
}

// SessionDir returns the working directory for a session.
func (f *Fetcher) SessionDir(sessionID string) string {
	return filepath.Join(f.config.WorkDir, sessionID)
}

// classifyCloneError maps go-git errors onto the fetch error taxonomy.
func classifyCloneError(repoURL string, err error) error {
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return fmt.Errorf("%w: repository not found: %s", ErrFetchFailed, repoURL)
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed):
		return fmt.Errorf("%w: repository requires authentication: %s", ErrFetchFailed, repoURL)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: clone aborted: %v", ErrFetchFailed, err)
	default:
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
}
