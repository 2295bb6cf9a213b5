// Package repo acquires repository source trees: GitHub archives downloaded into per-request
// directories, or existing local directories.
package repo

import (
	"context"
	"fmt"
	"os"

	"github.com/hyperjump/minaoshi/internal/models"
)

// Acquirer returns a local directory holding the source of the repository identified by id.
type Acquirer interface {
	Acquire(ctx context.Context, id string) (*Checkout, error)
}

// Checkout is an acquired source tree. Call Cleanup when done with it.
type Checkout struct {
	Dir     string
	Repo    string
	cleanup func() error
}

// NewCheckout returns a checkout of dir whose Cleanup runs cleanup. cleanup may be nil.
func NewCheckout(dir, repo string, cleanup func() error) *Checkout {
	return &Checkout{Dir: dir, Repo: repo, cleanup: cleanup}
}

// Cleanup removes the checkout if the acquirer created it.
func (c *Checkout) Cleanup() error {
	if c == nil || c.cleanup == nil {
		return nil
	}
	return c.cleanup()
}

// LocalAcquirer serves existing directories as they are. Nothing is removed on cleanup.
type LocalAcquirer struct{}

// Acquire checks that id is a readable directory.
func (LocalAcquirer) Acquire(ctx context.Context, id string) (*Checkout, error) {
	info, err := os.Stat(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRepoUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", models.ErrRepoUnavailable, id)
	}
	return &Checkout{Dir: id, Repo: id}, nil
}

// Router sends ids naming an existing local directory to Local and everything else to Remote.
// A nil Local disables local paths.
type Router struct {
	Remote Acquirer
	Local  Acquirer
}

// Acquire dispatches id to the matching acquirer.
func (r Router) Acquire(ctx context.Context, id string) (*Checkout, error) {
	if r.Local != nil {
		if info, err := os.Stat(id); err == nil && info.IsDir() {
			return r.Local.Acquire(ctx, id)
		}
	}
	if r.Remote == nil {
		return nil, fmt.Errorf("%w: no acquirer for %q", models.ErrRepoUnavailable, id)
	}
	return r.Remote.Acquire(ctx, id)
}
