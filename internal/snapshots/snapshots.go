// Package snapshots keeps a local git history of every persisted overlay
// revision, so a destructive edit is always one checkout away from being
// recovered. Disabled entirely when no directory is configured.
package snapshots

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const overlayFile = "overlay.json"

// Commit is one recorded overlay revision.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	When    time.Time `json:"when"`
}

// Service records overlay revisions into a single git repository.
type Service struct {
	dir string
	mu  sync.Mutex
}

// New opens or initializes the snapshot repository at dir.
func New(dir string) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshots dir: %w", err)
	}
	if _, err := git.PlainOpen(dir); err != nil {
		if !errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("open snapshots repo: %w", err)
		}
		if _, err := git.PlainInit(dir, false); err != nil {
			return nil, fmt.Errorf("init snapshots repo: %w", err)
		}
	}
	return &Service{dir: dir}, nil
}

// Record writes the overlay payload and commits it. Unchanged payloads
// produce no commit.
func (s *Service) Record(_ context.Context, payload []byte, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return fmt.Errorf("open snapshots repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	path := filepath.Join(s.dir, overlayFile)
	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write overlay snapshot: %w", err)
	}
	if _, err := worktree.Add(overlayFile); err != nil {
		return fmt.Errorf("git add overlay snapshot: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("snapshot status: %w", err)
	}
	if status.IsClean() {
		return nil
	}
	_, err = worktree.Commit(note, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "freilog",
			Email: "freilog@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit overlay snapshot: %w", err)
	}
	return nil
}

// History lists the most recent commits, newest first.
func (s *Service) History(limit int) ([]Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return nil, fmt.Errorf("open snapshots repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		// No commits yet.
		return []Commit{}, nil
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read snapshot log: %w", err)
	}
	defer iter.Close()

	out := []Commit{}
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(out) >= limit {
			return errStopIteration
		}
		out = append(out, Commit{
			Hash:    c.Hash.String(),
			Message: c.Message,
			When:    c.Author.When,
		})
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, fmt.Errorf("walk snapshot log: %w", err)
	}
	return out, nil
}

var errStopIteration = errors.New("stop iteration")
