package migrate

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/clintrovert/trac2github/internal/github"
)

// replay applies the ticket history to its issue in order, pausing after
// every write. The first failing write halts the replay.
func (e *Engine) replay(ctx context.Context, run *ticketRun, events []Event) error {
	for _, ev := range events {
		wrote, err := e.apply(ctx, run, ev)
		if err != nil {
			return err
		}
		if !wrote {
			continue
		}
		if err := e.settle(ctx); err != nil {
			return err
		}
	}
	return nil
}

// apply performs a single event and reports whether it wrote to GitHub
func (e *Engine) apply(ctx context.Context, run *ticketRun, ev Event) (bool, error) {
	number := run.issue

	switch ev := ev.(type) {
	case CommentEvent:
		url, err := e.issues.AddComment(ctx, number, e.commentBody(run.ticket.ID, ev.Change))
		if err != nil {
			return false, err
		}
		run.logger.Info("added comment", zap.String("url", url))

	case CategoryEvent:
		run.labels = e.swapLabel(run.labels, ev)
		labels := slices.Clone(run.labels)
		if _, err := e.issues.UpdateIssue(ctx, number, github.IssueUpdate{Labels: &labels}); err != nil {
			return false, err
		}
		run.logger.Info("updated labels",
			zap.Stringer("category", ev.Category),
			zap.Strings("labels", labels),
		)

	case StatusEvent:
		state := stateOf(ev.NewValue)
		if _, err := e.issues.UpdateIssue(ctx, number, github.IssueUpdate{State: &state}); err != nil {
			return false, err
		}
		run.logger.Info("changed issue state", zap.String("state", state))

	case SummaryEvent:
		title := ev.NewValue
		if _, err := e.issues.UpdateIssue(ctx, number, github.IssueUpdate{Title: &title}); err != nil {
			return false, err
		}
		run.logger.Info("changed title", zap.String("title", title))

	case MilestoneEvent:
		milestone := e.milestone(run, ev.NewValue)
		if _, err := e.issues.SetMilestone(ctx, number, milestone); err != nil {
			return false, err
		}
		run.logger.Info("changed milestone", zap.String("milestone", ev.NewValue))

	case UnsupportedEvent:
		run.logger.Warn("skipping change of unsupported field", zap.String("field", ev.Field))
		return false, nil

	default:
		return false, fmt.Errorf("unknown event %T", ev)
	}

	return true, nil
}

// swapLabel replaces the label of the old value with the label of the new
// one. Without the old label on the issue the new one is appended.
func (e *Engine) swapLabel(current []string, ev CategoryEvent) []string {
	out := slices.Clone(current)
	newName, hasNew := e.labels.Lookup(ev.Category, ev.NewValue)

	if oldName, ok := e.labels.Lookup(ev.Category, ev.OldValue); ok {
		if i := slices.Index(out, oldName); i >= 0 {
			if hasNew && !slices.Contains(out, newName) {
				out[i] = newName
			} else {
				out = slices.Delete(out, i, i+1)
			}
			return out
		}
	}

	if hasNew && !slices.Contains(out, newName) {
		out = append(out, newName)
	}
	return out
}

// migrateAttachments posts one comment per attachment and stages its
// payload. Only a staging directory failure halts the ticket.
func (e *Engine) migrateAttachments(ctx context.Context, run *ticketRun) error {
	atts, err := e.source.Attachments(ctx, run.ticket.ID)
	if err != nil {
		return err
	}

	var (
		dir    string
		staged []string
	)
	for _, a := range atts {
		if dir == "" {
			if dir, err = e.attachments.Prepare(run.ticket.ID, run.issue); err != nil {
				return err
			}
		}

		url, err := e.issues.AddComment(ctx, run.issue, e.attachmentBody(a))
		if err != nil {
			return err
		}
		run.logger.Info("added attachment comment",
			zap.String("file", a.Filename),
			zap.String("url", url),
		)
		if err := e.settle(ctx); err != nil {
			return err
		}

		path, err := e.attachments.Fetch(ctx, dir, a)
		if err != nil {
			run.logger.Warn("failed to stage attachment", zap.String("file", a.Filename), zap.Error(err))
			continue
		}
		staged = append(staged, path)
	}

	if e.archive != nil && len(staged) > 0 {
		msg := fmt.Sprintf("Attachments for Trac ticket #%d (issue #%d)", run.ticket.ID, run.issue)
		hash, err := e.archive.Commit(staged, msg)
		if err != nil {
			run.logger.Warn("failed to commit attachments", zap.Error(err))
		} else {
			run.logger.Info("committed attachments", zap.String("commit", hash), zap.Int("files", len(staged)))
		}
	}

	return nil
}

// stateOf returns the GitHub state for a Trac status
func stateOf(status string) string {
	if status == "closed" {
		return "closed"
	}
	return "open"
}
