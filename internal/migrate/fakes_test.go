package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clintrovert/trac2github/internal/github"
	"github.com/clintrovert/trac2github/internal/trac"
	"github.com/clintrovert/trac2github/pkg/types"
)

// call is one write recorded by fakeGitHub
type call struct {
	Op        string
	Number    int
	Issue     github.NewIssue
	Update    github.IssueUpdate
	Milestone *int
	Body      string
}

type fakeGitHub struct {
	last  int
	next  int
	calls []call

	milestones []github.Milestone
	labels     []string

	failCreate map[string]bool
	failOp     string
}

func newFakeGitHub(last int) *fakeGitHub {
	return &fakeGitHub{last: last, next: last + 1, failCreate: map[string]bool{}}
}

func (f *fakeGitHub) ops() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Op
	}
	return out
}

func (f *fakeGitHub) callsOf(op string) []call {
	var out []call
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeGitHub) LastIssueNumber(context.Context) (int, error) {
	return f.last, nil
}

func (f *fakeGitHub) CreateIssue(_ context.Context, issue github.NewIssue) (int, error) {
	if f.failCreate[issue.Title] {
		return 0, errors.New("Validation Failed")
	}
	n := f.next
	f.next++
	f.last = n
	f.calls = append(f.calls, call{Op: "create", Number: n, Issue: issue})
	return n, nil
}

func (f *fakeGitHub) UpdateIssue(_ context.Context, number int, update github.IssueUpdate) (string, error) {
	if f.failOp == "update" {
		return "", errors.New("Validation Failed")
	}
	f.calls = append(f.calls, call{Op: "update", Number: number, Update: update})
	return fmt.Sprintf("https://github.com/o/r/issues/%d", number), nil
}

func (f *fakeGitHub) SetMilestone(_ context.Context, number int, milestone *int) (string, error) {
	f.calls = append(f.calls, call{Op: "milestone", Number: number, Milestone: milestone})
	return fmt.Sprintf("https://github.com/o/r/issues/%d", number), nil
}

func (f *fakeGitHub) AddComment(_ context.Context, number int, body string) (string, error) {
	if f.failOp == "comment" {
		return "", errors.New("Validation Failed")
	}
	f.calls = append(f.calls, call{Op: "comment", Number: number, Body: body})
	return fmt.Sprintf("https://github.com/o/r/issues/%d#issuecomment-%d", number, len(f.calls)), nil
}

func (f *fakeGitHub) ListMilestones(context.Context) ([]github.Milestone, error) {
	return f.milestones, nil
}

func (f *fakeGitHub) CreateMilestone(_ context.Context, title string, _ time.Time) (int, error) {
	n := len(f.milestones) + 1
	f.milestones = append(f.milestones, github.Milestone{Title: title, Number: n})
	f.calls = append(f.calls, call{Op: "create_milestone", Number: n, Body: title})
	return n, nil
}

func (f *fakeGitHub) ListLabels(context.Context) ([]string, error) {
	return f.labels, nil
}

func (f *fakeGitHub) CreateLabel(_ context.Context, name, _ string) (string, error) {
	f.labels = append(f.labels, name)
	f.calls = append(f.calls, call{Op: "create_label", Body: name})
	return name, nil
}

type fakeSource struct {
	tickets     []types.Ticket
	platforms   map[int]string
	changes     map[int][]types.Change
	attachments map[int][]types.Attachment
	milestones  []types.Milestone
	values      []types.LabelValue
}

func (s *fakeSource) Milestones(context.Context, []string) ([]types.Milestone, error) {
	return s.milestones, nil
}

func (s *fakeSource) LabelValues(context.Context) ([]types.LabelValue, error) {
	return s.values, nil
}

func (s *fakeSource) Tickets(_ context.Context, sel trac.Selection) ([]types.Ticket, error) {
	if len(sel.TicketIDs) == 0 {
		return s.tickets, nil
	}
	var out []types.Ticket
	for _, t := range s.tickets {
		for _, id := range sel.TicketIDs {
			if t.ID == id {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (s *fakeSource) Platform(_ context.Context, id int) (string, error) {
	return s.platforms[id], nil
}

func (s *fakeSource) Changes(_ context.Context, id int) ([]types.Change, error) {
	// The engine sorts in place; hand out a copy.
	return append([]types.Change(nil), s.changes[id]...), nil
}

func (s *fakeSource) Attachments(_ context.Context, id int) ([]types.Attachment, error) {
	return s.attachments[id], nil
}

type fakeStager struct {
	prepared []string
	fetched  []string
	failFile string
}

func (s *fakeStager) Prepare(ticketID, issue int) (string, error) {
	dir := fmt.Sprintf("TRAC_%d_GIT_%d", ticketID, issue)
	s.prepared = append(s.prepared, dir)
	return dir, nil
}

func (s *fakeStager) Fetch(_ context.Context, dir string, a types.Attachment) (string, error) {
	if a.Filename == s.failFile {
		return "", errors.New("unexpected status 404")
	}
	path := dir + "/" + a.Filename
	s.fetched = append(s.fetched, path)
	return path, nil
}

type fakeArchive struct {
	commits [][]string
	msgs    []string
}

func (a *fakeArchive) Commit(files []string, message string) (string, error) {
	a.commits = append(a.commits, files)
	a.msgs = append(a.msgs, message)
	return "deadbeef", nil
}

type memCheckpoint struct {
	done  map[int]int
	saves int
}

func (m *memCheckpoint) Load() (map[int]int, error) {
	out := make(map[int]int, len(m.done))
	for k, v := range m.done {
		out[k] = v
	}
	return out, nil
}

func (m *memCheckpoint) Save(done map[int]int) error {
	m.saves++
	m.done = make(map[int]int, len(done))
	for k, v := range done {
		m.done[k] = v
	}
	return nil
}

type sleepRecorder struct {
	slept []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}
