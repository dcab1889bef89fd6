package attachments

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// Archive is a git repository holding the staged attachments, so they
// can be pushed somewhere the migrated issues can link to.
type Archive struct {
	root   string
	repo   *git.Repository
	author object.Signature
	logger *zap.Logger
}

// OpenArchive opens the git repository at root, initialising it first if
// needed.
func OpenArchive(root, authorName, authorEmail string, logger *zap.Logger) (*Archive, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	r, err := git.PlainOpen(root)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		r, err = git.PlainInit(root, false)
		if err == nil {
			logger.Info("initialised attachment archive", zap.String("path", root))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	return &Archive{
		root:   root,
		repo:   r,
		author: object.Signature{Name: authorName, Email: authorEmail},
		logger: logger,
	}, nil
}

// Commit adds files, given as paths below the archive root, and commits
// them. It returns the commit hash.
func (a *Archive) Commit(files []string, message string) (string, error) {
	w, err := a.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}

	for _, f := range files {
		rel, err := filepath.Rel(a.root, f)
		if err != nil {
			return "", fmt.Errorf("failed to add %s: %w", f, err)
		}
		if _, err := w.Add(filepath.ToSlash(rel)); err != nil {
			return "", fmt.Errorf("failed to add %s: %w", rel, err)
		}
	}

	author := a.author
	author.When = time.Now()
	hash, err := w.Commit(message, &git.CommitOptions{Author: &author})
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	a.logger.Info("committed attachments",
		zap.String("message", message),
		zap.String("commit", hash.String()),
	)

	return hash.String(), nil
}
