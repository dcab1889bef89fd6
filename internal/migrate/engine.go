// Package migrate replays Trac tickets and their history as GitHub
// issues, one ticket at a time, resuming from a checkpoint.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/clintrovert/trac2github/internal/github"
	"github.com/clintrovert/trac2github/internal/labels"
	"github.com/clintrovert/trac2github/internal/markup"
	"github.com/clintrovert/trac2github/internal/pacing"
	"github.com/clintrovert/trac2github/internal/trac"
	"github.com/clintrovert/trac2github/pkg/types"
)

var (
	// ErrNumberingOvertaken means GitHub already has an issue numbered at
	// or past the ticket that must keep its number.
	ErrNumberingOvertaken = errors.New("issue numbering already past ticket")
	// ErrNumberMismatch means GitHub assigned a number other than the
	// ticket id while numbers must be preserved.
	ErrNumberMismatch = errors.New("issue number does not match ticket id")
)

// Source is the Trac data a migration reads
type Source interface {
	Milestones(ctx context.Context, names []string) ([]types.Milestone, error)
	LabelValues(ctx context.Context) ([]types.LabelValue, error)
	Tickets(ctx context.Context, sel trac.Selection) ([]types.Ticket, error)
	Platform(ctx context.Context, ticketID int) (string, error)
	Changes(ctx context.Context, ticketID int) ([]types.Change, error)
	Attachments(ctx context.Context, ticketID int) ([]types.Attachment, error)
}

// Issues is the GitHub issue API a migration writes to
type Issues interface {
	LastIssueNumber(ctx context.Context) (int, error)
	CreateIssue(ctx context.Context, issue github.NewIssue) (int, error)
	UpdateIssue(ctx context.Context, number int, update github.IssueUpdate) (string, error)
	SetMilestone(ctx context.Context, number int, milestone *int) (string, error)
	AddComment(ctx context.Context, number int, body string) (string, error)
}

// AttachmentStore stages attachment payloads locally
type AttachmentStore interface {
	Prepare(ticketID, issue int) (string, error)
	Fetch(ctx context.Context, dir string, a types.Attachment) (string, error)
}

// Archiver commits staged attachment files
type Archiver interface {
	Commit(files []string, message string) (string, error)
}

// Options are the per-run toggles of the ticket phase
type Options struct {
	Selection         trac.Selection
	SkipComments      bool
	SkipAttachments   bool
	PreserveNumbers   bool
	AddMigratedSuffix bool
	// AttachmentStart and AttachmentEnd bound the ticket ids whose
	// attachments are migrated; an end of 0 or less is unbounded.
	AttachmentStart int
	AttachmentEnd   int
	VersionHeading  string
	Users           map[string]string
	Policy          pacing.Policy
	Sleep           pacing.SleepFunc
}

// Report summarises a ticket phase
type Report struct {
	Created      int
	Skipped      int
	Placeholders int
	// FailedTicket is the id of the ticket that halted the run, or 0.
	FailedTicket int
	FailedState  State
}

// Engine is the run context of the ticket phase. It owns the lookup
// tables and the checkpoint mapping, which it extends as issues are
// created. It is not safe for concurrent use.
type Engine struct {
	source      Source
	issues      Issues
	translator  *markup.Translator
	attachments AttachmentStore
	archive     Archiver
	opts        Options
	logger      *zap.Logger

	milestones map[string]int
	labels     *labels.Table
	done       map[int]int
	saveFn     func(map[int]int) error

	remap      map[int]int
	lastNumber int
	report     Report
}

// EngineConfig gathers the collaborators of an Engine
type EngineConfig struct {
	Source      Source
	Issues      Issues
	Translator  *markup.Translator
	Attachments AttachmentStore
	// Archive is optional.
	Archive    Archiver
	Milestones map[string]int
	Labels     *labels.Table
	// Done is the checkpoint mapping; the engine adds every created issue.
	Done map[int]int
	// Save persists Done at ticket batch boundaries; optional.
	Save func(map[int]int) error
}

// NewEngine creates a ticket phase engine
func NewEngine(cfg EngineConfig, opts Options, logger *zap.Logger) *Engine {
	if opts.Sleep == nil {
		opts.Sleep = pacing.Sleep
	}
	if cfg.Labels == nil {
		cfg.Labels = labels.NewTable()
	}
	if cfg.Milestones == nil {
		cfg.Milestones = make(map[string]int)
	}
	if cfg.Done == nil {
		cfg.Done = make(map[int]int)
	}
	return &Engine{
		source:      cfg.Source,
		issues:      cfg.Issues,
		translator:  cfg.Translator,
		attachments: cfg.Attachments,
		archive:     cfg.Archive,
		opts:        opts,
		logger:      logger,
		milestones:  cfg.Milestones,
		labels:      cfg.Labels,
		done:        cfg.Done,
		saveFn:      cfg.Save,
	}
}

// Report returns the counters of the last Run
func (e *Engine) Report() Report {
	return e.report
}

// Run migrates every selected ticket in ascending id order. Tickets
// already in the checkpoint are skipped. The first failing ticket halts
// the run with a *TicketError.
func (e *Engine) Run(ctx context.Context) error {
	e.report = Report{}

	tickets, err := e.source.Tickets(ctx, e.opts.Selection)
	if err != nil {
		return fmt.Errorf("failed to select tickets: %w", err)
	}

	last, err := e.issues.LastIssueNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last issue number: %w", err)
	}
	e.lastNumber = last
	e.remap = buildRemap(tickets, e.done, last, e.opts.PreserveNumbers)
	if e.opts.PreserveNumbers {
		e.logger.Info("preserving ticket numbers", zap.Int("last_issue", last))
	}

	e.logger.Info("migrating tickets", zap.Int("selected", len(tickets)))

	processed := 0
	for _, t := range tickets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if issue, ok := e.done[t.ID]; ok {
			e.logger.Info("ticket already migrated",
				zap.Int("ticket", t.ID),
				zap.Int("issue", issue),
			)
			e.lastNumber = max(e.lastNumber, issue)
			e.report.Skipped++
			continue
		}

		if processed > 0 && e.opts.Policy.TicketBatch > 0 && processed%e.opts.Policy.TicketBatch == 0 {
			if err := e.endBatch(ctx); err != nil {
				return err
			}
		}
		processed++

		run := &ticketRun{ticket: t, state: Pending, logger: e.logger.With(zap.Int("ticket", t.ID))}
		if err := e.migrateTicket(ctx, run); err != nil {
			failedIn := run.state
			run.transition(Failed)
			e.report.FailedTicket = t.ID
			e.report.FailedState = failedIn
			if failedIn >= Created {
				run.logger.Error("issue exists but its history is incomplete",
					zap.Int("issue", run.issue),
					zap.Stringer("state", failedIn),
				)
			}
			return &TicketError{TicketID: t.ID, State: failedIn, Err: err}
		}
	}

	return nil
}

func (e *Engine) endBatch(ctx context.Context) error {
	if e.saveFn != nil {
		if err := e.saveFn(e.done); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
	}
	e.logger.Info("ticket batch done, cooling down",
		zap.Duration("cooldown", e.opts.Policy.BatchCooldown),
	)
	return e.opts.Sleep(ctx, e.opts.Policy.BatchCooldown)
}

// settle waits the inter-write delay after a successful write
func (e *Engine) settle(ctx context.Context) error {
	return e.opts.Sleep(ctx, e.opts.Policy.WriteDelay)
}

// buildRemap assigns the destination number every selected ticket is
// expected to get. Tickets already migrated, selected or not, map to
// their real issue; the others are numbered after last, the newest issue
// on GitHub.
func buildRemap(tickets []types.Ticket, done map[int]int, last int, preserve bool) map[int]int {
	remap := make(map[int]int, len(tickets)+len(done))
	for id, issue := range done {
		remap[id] = issue
	}
	next := last + 1
	for _, t := range tickets {
		if issue, ok := done[t.ID]; ok {
			remap[t.ID] = issue
			continue
		}
		if preserve {
			remap[t.ID] = t.ID
			continue
		}
		remap[t.ID] = next
		next++
	}
	return remap
}

func (e *Engine) migrateTicket(ctx context.Context, run *ticketRun) error {
	t := run.ticket

	if e.opts.PreserveNumbers {
		if err := e.advanceNumbering(ctx, t.ID); err != nil {
			return err
		}
	}

	platform, err := e.source.Platform(ctx, t.ID)
	if err != nil {
		return err
	}

	var events []Event
	if !e.opts.SkipComments {
		changes, err := e.source.Changes(ctx, t.ID)
		if err != nil {
			return err
		}
		sortChanges(changes)
		t = originalTicket(t, changes)
		events = make([]Event, len(changes))
		for i, c := range changes {
			events[i] = Classify(c)
		}
	}

	run.labels = e.ticketLabels(t, platform)

	number, err := e.issues.CreateIssue(ctx, github.NewIssue{
		Title:     t.Summary,
		Body:      e.issueBody(t, platform),
		Milestone: e.milestone(run, t.Milestone),
		Labels:    slices.Clone(run.labels),
	})
	if err != nil {
		return err
	}

	run.issue = number
	run.transition(Created)
	e.done[t.ID] = number
	e.remap[t.ID] = number
	e.lastNumber = number
	e.report.Created++
	run.logger.Info("ticket converted to issue", zap.Int("issue", number))

	if e.opts.PreserveNumbers && number != t.ID {
		return fmt.Errorf("%w: ticket #%d became issue #%d", ErrNumberMismatch, t.ID, number)
	}
	if err := e.settle(ctx); err != nil {
		return err
	}

	if !e.opts.SkipAttachments && e.attachmentsWanted(t.ID) {
		if err := e.migrateAttachments(ctx, run); err != nil {
			return err
		}
	}

	if e.opts.SkipComments {
		if state := stateOf(run.ticket.Status); state == "closed" {
			if _, err := e.issues.UpdateIssue(ctx, number, github.IssueUpdate{State: &state}); err != nil {
				return err
			}
			run.logger.Info("closed issue", zap.Int("issue", number))
		}
	} else {
		run.transition(Replaying)
		if err := e.replay(ctx, run, events); err != nil {
			return err
		}
	}

	run.transition(Done)
	return nil
}

// advanceNumbering creates closed placeholder issues until GitHub's next
// number is the ticket id.
func (e *Engine) advanceNumbering(ctx context.Context, ticketID int) error {
	if e.lastNumber >= ticketID {
		return fmt.Errorf("%w: cannot create ticket #%d because issue #%d was already created",
			ErrNumberingOvertaken, ticketID, e.lastNumber)
	}

	for e.lastNumber < ticketID-1 {
		number, err := e.issues.CreateIssue(ctx, github.NewIssue{
			Title: "Placeholder",
			Body:  "This is a placeholder created during migration to preserve original issue numbers.",
		})
		if err != nil {
			return fmt.Errorf("failed to create placeholder: %w", err)
		}
		if number <= e.lastNumber {
			return fmt.Errorf("%w: placeholder became issue #%d after #%d", ErrNumberMismatch, number, e.lastNumber)
		}
		e.lastNumber = number
		e.report.Placeholders++
		e.logger.Info("created placeholder issue", zap.Int("issue", number))

		closed := "closed"
		invalid := []string{"invalid"}
		if _, err := e.issues.UpdateIssue(ctx, number, github.IssueUpdate{State: &closed, Labels: &invalid}); err != nil {
			e.logger.Warn("failed to close placeholder issue", zap.Int("issue", number), zap.Error(err))
		}
	}

	if e.lastNumber >= ticketID {
		return fmt.Errorf("%w: cannot create ticket #%d because issue #%d was already created",
			ErrNumberingOvertaken, ticketID, e.lastNumber)
	}
	return nil
}

// ticketLabels assembles the labels of a new issue in category order
func (e *Engine) ticketLabels(t types.Ticket, platform string) []string {
	out := []string{}
	for _, c := range types.Categories {
		value := t.CategoryValue(c)
		if c == types.CategoryPlatform {
			value = platform
		}
		name, ok := e.labels.Lookup(c, value)
		if ok && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// milestone resolves a milestone name, nil for none or unknown
func (e *Engine) milestone(run *ticketRun, name string) *int {
	if name == "" {
		return nil
	}
	number, ok := e.milestones[name]
	if !ok {
		run.logger.Warn("milestone not on github, leaving issue without one", zap.String("milestone", name))
		return nil
	}
	return &number
}

func (e *Engine) attachmentsWanted(ticketID int) bool {
	if ticketID < e.opts.AttachmentStart {
		return false
	}
	return e.opts.AttachmentEnd <= 0 || ticketID < e.opts.AttachmentEnd
}

// username maps a Trac user to GitHub, keeping unknown names as they are
func (e *Engine) username(trac string) string {
	if gh, ok := e.opts.Users[trac]; ok {
		return gh
	}
	e.logger.Warn("no github username for trac user", zap.String("user", trac))
	return trac
}
