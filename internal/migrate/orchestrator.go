package migrate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/clintrovert/trac2github/internal/labels"
	"github.com/clintrovert/trac2github/internal/markup"
)

// Checkpoint persists the ticket id to issue number mapping between runs
type Checkpoint interface {
	Load() (map[int]int, error)
	Save(map[int]int) error
}

// Phases selects which parts of a run execute
type Phases struct {
	SkipMilestones bool
	SkipLabels     bool
	SkipTickets    bool
	// Milestones restricts milestone creation to these names.
	Milestones []string
}

// Orchestrator runs a whole migration: checkpoint, milestones, labels,
// then tickets, saving the checkpoint when the ticket phase ends.
type Orchestrator struct {
	source      Source
	issues      Issues
	catalog     *labels.Materializer
	translator  *markup.Translator
	attachments AttachmentStore
	archive     Archiver
	checkpoint  Checkpoint
	phases      Phases
	opts        Options
	logger      *zap.Logger
}

// OrchestratorConfig gathers the collaborators of an Orchestrator
type OrchestratorConfig struct {
	Source      Source
	Issues      Issues
	Catalog     *labels.Materializer
	Translator  *markup.Translator
	Attachments AttachmentStore
	Archive     Archiver
	Checkpoint  Checkpoint
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(cfg OrchestratorConfig, phases Phases, opts Options, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		source:      cfg.Source,
		issues:      cfg.Issues,
		catalog:     cfg.Catalog,
		translator:  cfg.Translator,
		attachments: cfg.Attachments,
		archive:     cfg.Archive,
		checkpoint:  cfg.Checkpoint,
		phases:      phases,
		opts:        opts,
		logger:      logger,
	}
}

// Run executes the selected phases. The returned report is meaningful
// even when err is non-nil.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	done, err := o.checkpoint.Load()
	if err != nil {
		return Report{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	o.logger.Info("loaded checkpoint", zap.Int("tickets", len(done)))

	milestones, err := o.milestones(ctx)
	if err != nil {
		return Report{}, err
	}

	table, err := o.labels(ctx)
	if err != nil {
		return Report{}, err
	}

	if o.phases.SkipTickets {
		return Report{}, nil
	}

	engine := NewEngine(EngineConfig{
		Source:      o.source,
		Issues:      o.issues,
		Translator:  o.translator,
		Attachments: o.attachments,
		Archive:     o.archive,
		Milestones:  milestones,
		Labels:      table,
		Done:        done,
		Save:        o.checkpoint.Save,
	}, o.opts, o.logger)

	runErr := engine.Run(ctx)
	saveErr := o.checkpoint.Save(done)
	if saveErr != nil {
		saveErr = fmt.Errorf("failed to save checkpoint: %w", saveErr)
	}

	report := engine.Report()
	o.logger.Info("ticket phase finished",
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("placeholders", report.Placeholders),
		zap.Int("failed_ticket", report.FailedTicket),
	)

	return report, errors.Join(runErr, saveErr)
}

func (o *Orchestrator) milestones(ctx context.Context) (map[string]int, error) {
	if o.phases.SkipMilestones {
		if o.phases.SkipTickets {
			return nil, nil
		}
		return o.catalog.IndexMilestones(ctx)
	}

	wanted, err := o.source.Milestones(ctx, o.phases.Milestones)
	if err != nil {
		return nil, fmt.Errorf("failed to read milestones: %w", err)
	}
	o.logger.Info("migrating milestones", zap.Int("count", len(wanted)))
	return o.catalog.EnsureMilestones(ctx, wanted)
}

func (o *Orchestrator) labels(ctx context.Context) (*labels.Table, error) {
	if o.phases.SkipLabels && o.phases.SkipTickets {
		return nil, nil
	}

	values, err := o.source.LabelValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read label values: %w", err)
	}

	var table *labels.Table
	if o.phases.SkipLabels {
		table, err = o.catalog.IndexLabels(ctx, values)
	} else {
		o.logger.Info("migrating labels", zap.Int("count", len(values)))
		table, err = o.catalog.EnsureLabels(ctx, values)
	}
	if err != nil {
		return nil, err
	}
	o.logger.Info("label values resolved", zap.Int("resolved", table.Len()))
	return table, nil
}
