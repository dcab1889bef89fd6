package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/clintrovert/trac2github/internal/pacing"
	"github.com/clintrovert/trac2github/pkg/types"
)

// ErrNoSuccessMarker is returned when GitHub answered 2xx but the body
// lacks the field that identifies the created or updated object.
var ErrNoSuccessMarker = errors.New("response has no success marker")

// Options configures a Client
type Options struct {
	// Token takes precedence over Username/Password when set.
	Token    string
	Username string
	Password string
	// BaseURL overrides https://api.github.com/, e.g. for GitHub Enterprise.
	BaseURL    string
	UserAgent  string
	Repository types.Repository
	Policy     pacing.Policy
	// Sleep replaces pacing.Sleep, mostly in tests.
	Sleep pacing.SleepFunc
}

// Client wraps the GitHub issues API for a single repository. Every
// mutating call is counted and the client cools down once the policy's
// request window is full.
type Client struct {
	apiClient *github.Client
	repo      types.Repository
	counter   *pacing.Counter
	logger    *zap.Logger
}

// Milestone is a milestone that already exists on GitHub
type Milestone struct {
	Title  string
	Number int
}

// NewIssue is the payload of an issue create call
type NewIssue struct {
	Title     string
	Body      string
	Milestone *int
	Labels    []string
}

// IssueUpdate is a partial issue edit; nil fields are left untouched
type IssueUpdate struct {
	Title  *string
	State  *string
	Labels *[]string
}

// NewClient creates a new GitHub client
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	var httpClient *http.Client
	switch {
	case opts.Token != "":
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: opts.Token},
		)
		httpClient = oauth2.NewClient(context.Background(), ts)
	case opts.Username != "":
		tp := github.BasicAuthTransport{
			Username: opts.Username,
			Password: opts.Password,
		}
		httpClient = tp.Client()
	}

	apiClient := github.NewClient(httpClient)
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("failed to parse github base url: %w", err)
		}
		apiClient.BaseURL = u
	}
	if opts.UserAgent != "" {
		apiClient.UserAgent = opts.UserAgent
	}

	return &Client{
		apiClient: apiClient,
		repo:      opts.Repository,
		counter:   pacing.NewCounter(opts.Policy, opts.Sleep),
		logger:    logger,
	}, nil
}

// Repository returns the destination repository
func (c *Client) Repository() types.Repository {
	return c.repo
}

// ListMilestones returns every milestone of the repository, open or closed
func (c *Client) ListMilestones(ctx context.Context) ([]Milestone, error) {
	opts := &github.MilestoneListOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []Milestone
	for {
		page, resp, err := c.apiClient.Issues.ListMilestones(ctx, c.repo.Owner, c.repo.Name, opts)
		if err != nil {
			c.logFailure("list milestones", err)
			return nil, fmt.Errorf("failed to list milestones: %w", err)
		}
		for _, m := range page {
			out = append(out, Milestone{Title: m.GetTitle(), Number: m.GetNumber()})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return out, nil
}

// ListLabels returns the names of every label of the repository
func (c *Client) ListLabels(ctx context.Context) ([]string, error) {
	opts := &github.ListOptions{PerPage: 100}

	var out []string
	for {
		page, resp, err := c.apiClient.Issues.ListLabels(ctx, c.repo.Owner, c.repo.Name, opts)
		if err != nil {
			c.logFailure("list labels", err)
			return nil, fmt.Errorf("failed to list labels: %w", err)
		}
		for _, l := range page {
			out = append(out, l.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return out, nil
}

// LastIssueNumber returns the highest issue or pull request number in
// the repository, or 0 for an empty repository.
func (c *Client) LastIssueNumber(ctx context.Context) (int, error) {
	issues, _, err := c.apiClient.Issues.ListByRepo(ctx, c.repo.Owner, c.repo.Name, &github.IssueListByRepoOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		c.logFailure("list issues", err)
		return 0, fmt.Errorf("failed to list issues: %w", err)
	}
	if len(issues) == 0 {
		return 0, nil
	}
	return issues[0].GetNumber(), nil
}

// CreateMilestone creates an open milestone and returns its number. A zero
// due time creates it without a due date.
func (c *Client) CreateMilestone(ctx context.Context, title string, due time.Time) (int, error) {
	m := &github.Milestone{
		Title: github.String(title),
		State: github.String("open"),
	}
	if !due.IsZero() {
		m.DueOn = &github.Timestamp{Time: due.UTC()}
	}
	c.logger.Debug("creating milestone",
		zap.String("title", title),
		zap.Time("due", due),
	)

	var created *github.Milestone
	err := c.mutate(ctx, "create milestone", func() (err error) {
		created, _, err = c.apiClient.Issues.CreateMilestone(ctx, c.repo.Owner, c.repo.Name, m)
		return err
	})
	if err != nil {
		return 0, err
	}
	if created.Number == nil {
		return 0, fmt.Errorf("failed to create milestone %q: %w", title, ErrNoSuccessMarker)
	}

	return created.GetNumber(), nil
}

// CreateLabel creates a label and returns the name GitHub stored
func (c *Client) CreateLabel(ctx context.Context, name, color string) (string, error) {
	c.logger.Debug("creating label",
		zap.String("name", name),
		zap.String("color", color),
	)

	var created *github.Label
	err := c.mutate(ctx, "create label", func() (err error) {
		created, _, err = c.apiClient.Issues.CreateLabel(ctx, c.repo.Owner, c.repo.Name, &github.Label{
			Name:  github.String(name),
			Color: github.String(color),
		})
		return err
	})
	if err != nil {
		return "", err
	}
	if created.URL == nil {
		return "", fmt.Errorf("failed to create label %q: %w", name, ErrNoSuccessMarker)
	}

	return created.GetName(), nil
}

// CreateIssue creates an issue and returns its number
func (c *Client) CreateIssue(ctx context.Context, issue NewIssue) (int, error) {
	labels := issue.Labels
	if labels == nil {
		labels = []string{}
	}
	req := &github.IssueRequest{
		Title:     github.String(issue.Title),
		Body:      github.String(issue.Body),
		Labels:    &labels,
		Milestone: issue.Milestone,
	}
	c.logger.Debug("creating issue",
		zap.String("title", issue.Title),
		zap.Strings("labels", labels),
		zap.Intp("milestone", issue.Milestone),
	)

	var created *github.Issue
	err := c.mutate(ctx, "create issue", func() (err error) {
		created, _, err = c.apiClient.Issues.Create(ctx, c.repo.Owner, c.repo.Name, req)
		return err
	})
	if err != nil {
		return 0, err
	}
	if created.Number == nil {
		return 0, fmt.Errorf("failed to create issue %q: %w", issue.Title, ErrNoSuccessMarker)
	}

	return created.GetNumber(), nil
}

// UpdateIssue edits an issue and returns its API URL
func (c *Client) UpdateIssue(ctx context.Context, number int, update IssueUpdate) (string, error) {
	req := &github.IssueRequest{
		Title:  update.Title,
		State:  update.State,
		Labels: update.Labels,
	}
	c.logger.Debug("updating issue",
		zap.Int("issue", number),
		zap.Stringp("title", update.Title),
		zap.Stringp("state", update.State),
	)

	var updated *github.Issue
	err := c.mutate(ctx, "update issue", func() (err error) {
		updated, _, err = c.apiClient.Issues.Edit(ctx, c.repo.Owner, c.repo.Name, number, req)
		return err
	})
	if err != nil {
		return "", err
	}
	if updated.URL == nil {
		return "", fmt.Errorf("failed to update issue #%d: %w", number, ErrNoSuccessMarker)
	}

	return updated.GetURL(), nil
}

// SetMilestone assigns milestone to the issue, or clears it when nil
func (c *Client) SetMilestone(ctx context.Context, number int, milestone *int) (string, error) {
	c.logger.Debug("setting milestone",
		zap.Int("issue", number),
		zap.Intp("milestone", milestone),
	)

	var updated *github.Issue
	err := c.mutate(ctx, "set milestone", func() (err error) {
		if milestone == nil {
			updated, _, err = c.apiClient.Issues.RemoveMilestone(ctx, c.repo.Owner, c.repo.Name, number)
			return err
		}
		updated, _, err = c.apiClient.Issues.Edit(ctx, c.repo.Owner, c.repo.Name, number, &github.IssueRequest{
			Milestone: milestone,
		})
		return err
	})
	if err != nil {
		return "", err
	}
	if updated.URL == nil {
		return "", fmt.Errorf("failed to set milestone of issue #%d: %w", number, ErrNoSuccessMarker)
	}

	return updated.GetURL(), nil
}

// AddComment posts a comment and returns its API URL
func (c *Client) AddComment(ctx context.Context, number int, body string) (string, error) {
	c.logger.Debug("adding comment",
		zap.Int("issue", number),
		zap.String("body", body),
	)

	var created *github.IssueComment
	err := c.mutate(ctx, "add comment", func() (err error) {
		created, _, err = c.apiClient.Issues.CreateComment(ctx, c.repo.Owner, c.repo.Name, number, &github.IssueComment{
			Body: github.String(body),
		})
		return err
	})
	if err != nil {
		return "", err
	}
	if created.URL == nil {
		return "", fmt.Errorf("failed to add comment to issue #%d: %w", number, ErrNoSuccessMarker)
	}

	return created.GetURL(), nil
}

// mutate runs a write call, counts it against the request window and logs
// the failure shape. The request is counted whether or not it succeeded.
func (c *Client) mutate(ctx context.Context, op string, call func() error) error {
	err := call()

	cooled, cerr := c.counter.Observe(ctx)
	if cooled {
		c.logger.Info("request window full, cooled down",
			zap.String("after", op),
		)
	}

	if err != nil {
		c.logFailure(op, err)
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if cerr != nil {
		return fmt.Errorf("cooldown interrupted: %w", cerr)
	}

	return nil
}

func (c *Client) logFailure(op string, err error) {
	var (
		rateErr  *github.RateLimitError
		abuseErr *github.AbuseRateLimitError
		respErr  *github.ErrorResponse
	)

	switch {
	case errors.As(err, &rateErr):
		c.logger.Error("github rate limit exceeded",
			zap.String("op", op),
			zap.String("message", rateErr.Message),
			zap.Time("reset", rateErr.Rate.Reset.Time),
		)
	case errors.As(err, &abuseErr):
		c.logger.Error("github secondary rate limit hit",
			zap.String("op", op),
			zap.String("message", abuseErr.Message),
			zap.Durationp("retry_after", abuseErr.RetryAfter),
		)
	case errors.As(err, &respErr):
		status := 0
		if respErr.Response != nil {
			status = respErr.Response.StatusCode
		}
		c.logger.Error("github rejected request",
			zap.String("op", op),
			zap.Int("status", status),
			zap.String("message", respErr.Message),
			zap.Any("errors", respErr.Errors),
			zap.String("documentation_url", respErr.DocumentationURL),
		)
	default:
		c.logger.Error("github request failed without a response",
			zap.String("op", op),
			zap.Error(err),
		)
	}
}
