package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clintrovert/trac2github/internal/attachments"
	"github.com/clintrovert/trac2github/internal/checkpoint"
	"github.com/clintrovert/trac2github/internal/config"
	"github.com/clintrovert/trac2github/internal/github"
	"github.com/clintrovert/trac2github/internal/labels"
	"github.com/clintrovert/trac2github/internal/markup"
	"github.com/clintrovert/trac2github/internal/migrate"
	"github.com/clintrovert/trac2github/internal/trac"
)

const defaultConfigPath = "trac2github.yaml"

// flags override the per-run toggles of the config file
type flags struct {
	config          string
	skipMilestones  bool
	skipLabels      bool
	skipTickets     bool
	skipComments    bool
	skipAttachments bool
	offset          int
	limit           int
	tickets         []int
	preserveNumbers bool
	verbose         bool
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "trac2github",
		Short:         "Migrate Trac tickets to GitHub issues",
		Long:          "trac2github copies milestones, labels, tickets, comments and attachments from a Trac database into a GitHub repository, resuming from a checkpoint file.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := f.config
			if !cmd.Flags().Changed("config") {
				if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
					path = ""
				}
			}

			cfg, err := config.Load(path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}

			logger, err := newLogger(cfg.Migration.Verbose)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, logger); err != nil {
				logger.Error("migration failed", zap.Error(err))
				return err
			}
			logger.Info("migration complete")
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.config, "config", defaultConfigPath, "path to the YAML config file")
	fs.BoolVar(&f.skipMilestones, "skip-milestones", false, "do not create milestones")
	fs.BoolVar(&f.skipLabels, "skip-labels", false, "do not create labels")
	fs.BoolVar(&f.skipTickets, "skip-tickets", false, "do not migrate tickets")
	fs.BoolVar(&f.skipComments, "skip-comments", false, "do not replay ticket history")
	fs.BoolVar(&f.skipAttachments, "skip-attachments", false, "do not migrate attachments")
	fs.IntVar(&f.offset, "offset", 0, "skip this many selected tickets")
	fs.IntVar(&f.limit, "limit", 0, "migrate at most this many tickets (0 = all)")
	fs.IntSliceVar(&f.tickets, "ticket", nil, "migrate only these ticket ids (repeatable)")
	fs.BoolVar(&f.preserveNumbers, "preserve-numbers", false, "keep Trac ticket numbers as issue numbers")
	fs.BoolVar(&f.verbose, "verbose", false, "log at debug level")

	return cmd
}

// apply copies every flag set on the command line into cfg
func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	m := &cfg.Migration

	if changed("skip-milestones") {
		m.SkipMilestones = f.skipMilestones
	}
	if changed("skip-labels") {
		m.SkipLabels = f.skipLabels
	}
	if changed("skip-tickets") {
		m.SkipTickets = f.skipTickets
	}
	if changed("skip-comments") {
		m.SkipComments = f.skipComments
	}
	if changed("skip-attachments") {
		m.SkipAttachments = f.skipAttachments
	}
	if changed("offset") {
		m.TicketOffset = f.offset
	}
	if changed("limit") {
		m.TicketLimit = f.limit
	}
	if changed("ticket") {
		m.TicketIDs = f.tickets
	}
	if changed("preserve-numbers") {
		m.PreserveNumbers = f.preserveNumbers
	}
	if changed("verbose") {
		m.Verbose = f.verbose
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewProduction()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	return cfg.Build()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	driver, err := cfg.Driver()
	if err != nil {
		return err
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return err
	}

	db, err := trac.Open(ctx, driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	source := trac.NewSource(db, driver, logger)

	githubClient, err := github.NewClient(github.Options{
		Token:      cfg.GitHub.Token,
		Username:   cfg.GitHub.Username,
		Password:   cfg.GitHub.Password,
		BaseURL:    cfg.GitHub.BaseURL,
		UserAgent:  cfg.UserAgent(),
		Repository: cfg.Repository(),
		Policy:     cfg.Policy(),
	}, logger)
	if err != nil {
		logger.Error("failed to create github client", zap.Error(err))
		return err
	}

	logger.Info("migrating into repository", zap.String("repository", githubClient.Repository().FullName()))

	stager := attachments.NewStager(cfg.Migration.AttachmentDir, cfg.Trac.URL, nil, logger)

	var archive migrate.Archiver
	if cfg.Migration.CommitAttachments && !cfg.Migration.SkipAttachments {
		a, err := attachments.OpenArchive(stager.Root(), "trac2github", cfg.GitHub.UserEmail, logger)
		if err != nil {
			return err
		}
		archive = a
	}

	store := checkpoint.NewStore(cfg.Migration.SaveTickets)
	logger.Info("using checkpoint", zap.String("path", store.Path()))

	orchestrator := migrate.NewOrchestrator(migrate.OrchestratorConfig{
		Source:      source,
		Issues:      githubClient,
		Catalog:     labels.NewMaterializer(githubClient, cfg.Labels, logger),
		Translator:  markup.New(cfg.Trac.URL, cfg.Markup.ManualURL),
		Attachments: stager,
		Archive:     archive,
		Checkpoint:  store,
	}, migrate.Phases{
		SkipMilestones: cfg.Migration.SkipMilestones,
		SkipLabels:     cfg.Migration.SkipLabels,
		SkipTickets:    cfg.Migration.SkipTickets,
		Milestones:     cfg.Migration.Milestones,
	}, migrate.Options{
		Selection:         cfg.Selection(),
		SkipComments:      cfg.Migration.SkipComments,
		SkipAttachments:   cfg.Migration.SkipAttachments,
		PreserveNumbers:   cfg.Migration.PreserveNumbers,
		AddMigratedSuffix: cfg.Migration.AddMigratedSuffix,
		AttachmentStart:   cfg.Migration.AttachmentTicketStart,
		AttachmentEnd:     cfg.Migration.AttachmentTicketEnd,
		VersionHeading:    cfg.Markup.VersionHeading,
		Users:             cfg.Users,
		Policy:            cfg.Policy(),
	}, logger)

	_, err = orchestrator.Run(ctx)
	return err
}
