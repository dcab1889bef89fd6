// Package labels creates the GitHub milestones and labels a migration
// needs and keeps the lookup tables that tickets are resolved against.
package labels

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/clintrovert/trac2github/internal/github"
	"github.com/clintrovert/trac2github/pkg/types"
)

// API is the part of the GitHub client the materializer needs
type API interface {
	ListMilestones(ctx context.Context) ([]github.Milestone, error)
	CreateMilestone(ctx context.Context, title string, due time.Time) (int, error)
	ListLabels(ctx context.Context) ([]string, error)
	CreateLabel(ctx context.Context, name, color string) (string, error)
}

// Materializer resolves source milestones and category values to GitHub
// objects, creating the missing ones. Resolved entries are never dropped
// during a run.
type Materializer struct {
	api    API
	remap  map[string]*string
	logger *zap.Logger

	milestones     map[string]int
	milestonesRead bool

	labels         *Table
	existingLabels map[string]bool
}

// NewMaterializer creates a materializer. remap forces a default label
// name such as "T: defect" to another name, or suppresses it when the
// value is nil or empty.
func NewMaterializer(api API, remap map[string]*string, logger *zap.Logger) *Materializer {
	return &Materializer{
		api:        api,
		remap:      remap,
		logger:     logger,
		milestones: make(map[string]int),
		labels:     NewTable(),
	}
}

// Milestones returns the milestone name to number index
func (m *Materializer) Milestones() map[string]int {
	return m.milestones
}

// Labels returns the label table
func (m *Materializer) Labels() *Table {
	return m.labels
}

// EnsureMilestones makes sure every wanted milestone exists on GitHub and
// returns the full name to number index, including milestones that were
// already there. A failed create is logged and leaves the name unmapped.
func (m *Materializer) EnsureMilestones(ctx context.Context, wanted []types.Milestone) (map[string]int, error) {
	if err := m.readMilestones(ctx); err != nil {
		return nil, err
	}

	for _, ms := range wanted {
		if _, ok := m.milestones[ms.Name]; ok {
			m.logger.Info("milestone already exists", zap.String("milestone", ms.Name))
			continue
		}

		number, err := m.api.CreateMilestone(ctx, ms.Name, ms.Due)
		if err != nil {
			m.logger.Error("failed to convert milestone",
				zap.String("milestone", ms.Name),
				zap.Error(err),
			)
			continue
		}

		m.milestones[ms.Name] = number
		m.logger.Info("milestone converted",
			zap.String("milestone", ms.Name),
			zap.Int("number", number),
		)
	}

	return m.milestones, nil
}

// IndexMilestones loads the existing GitHub milestones without creating any
func (m *Materializer) IndexMilestones(ctx context.Context) (map[string]int, error) {
	return m.EnsureMilestones(ctx, nil)
}

func (m *Materializer) readMilestones(ctx context.Context) error {
	if m.milestonesRead {
		return nil
	}
	existing, err := m.api.ListMilestones(ctx)
	if err != nil {
		return fmt.Errorf("failed to read existing milestones: %w", err)
	}
	for _, ms := range existing {
		m.milestones[normalize(ms.Title)] = ms.Number
	}
	m.milestonesRead = true
	return nil
}

// EnsureLabels resolves every value to a label, creating missing labels.
// Values resolved earlier in the run are not looked at again.
func (m *Materializer) EnsureLabels(ctx context.Context, values []types.LabelValue) (*Table, error) {
	return m.resolveLabels(ctx, values, true)
}

// IndexLabels resolves values only against labels that already exist
func (m *Materializer) IndexLabels(ctx context.Context, values []types.LabelValue) (*Table, error) {
	return m.resolveLabels(ctx, values, false)
}

func (m *Materializer) resolveLabels(ctx context.Context, values []types.LabelValue, create bool) (*Table, error) {
	if err := m.readLabels(ctx); err != nil {
		return nil, err
	}

	for _, v := range values {
		if m.labels.Known(v.Category, v.Value) {
			continue
		}

		name, ok := m.labelName(v)
		if !ok {
			m.labels.Suppress(v.Category, v.Value)
			continue
		}

		if m.existingLabels[normalize(name)] {
			m.logger.Info("label already exists",
				zap.String("value", v.Value),
				zap.String("label", name),
			)
			m.labels.Set(v.Category, v.Value, name)
			continue
		}
		if !create {
			continue
		}

		created, err := m.api.CreateLabel(ctx, name, v.Category.Color(v.Value))
		if err != nil {
			m.logger.Error("failed to convert trac field",
				zap.String("label", name),
				zap.Error(err),
			)
			continue
		}

		m.existingLabels[normalize(created)] = true
		m.labels.Set(v.Category, v.Value, created)
		m.logger.Info("label converted",
			zap.String("value", v.Value),
			zap.String("label", created),
		)
	}

	return m.labels, nil
}

func (m *Materializer) readLabels(ctx context.Context) error {
	if m.existingLabels != nil {
		return nil
	}
	existing, err := m.api.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("failed to read existing labels: %w", err)
	}
	m.existingLabels = make(map[string]bool, len(existing))
	for _, name := range existing {
		m.existingLabels[normalize(name)] = true
		m.logger.Debug("found github label", zap.String("label", name))
	}
	return nil
}

// labelName applies the remap table; false means suppressed
func (m *Materializer) labelName(v types.LabelValue) (string, bool) {
	name := v.LabelName()
	if forced, ok := m.remap[name]; ok {
		if forced == nil {
			return "", false
		}
		name = *forced
	}
	return name, name != ""
}

// normalize percent-decodes a GitHub title, keeping '+' literal; titles
// that do not decode are used as is.
func normalize(title string) string {
	decoded, err := url.PathUnescape(title)
	if err != nil {
		return title
	}
	return decoded
}
