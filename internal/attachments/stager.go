// Package attachments downloads Trac ticket attachments into a local
// staging directory, optionally committing them to a git archive.
package attachments

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/clintrovert/trac2github/pkg/types"
)

// Stager fetches attachment payloads from Trac
type Stager struct {
	dir        string
	tracURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewStager creates a stager writing below dir. A nil httpClient uses
// http.DefaultClient.
func NewStager(dir, tracURL string, httpClient *http.Client, logger *zap.Logger) *Stager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Stager{
		dir:        dir,
		tracURL:    strings.TrimRight(tracURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Root returns the staging root directory
func (s *Stager) Root() string {
	return s.dir
}

// TicketDir returns the staging directory for one ticket
func (s *Stager) TicketDir(ticketID, issue int) string {
	return filepath.Join(s.dir, fmt.Sprintf("TRAC_%d_GIT_%d", ticketID, issue))
}

// Prepare creates the ticket's staging directory
func (s *Stager) Prepare(ticketID, issue int) (string, error) {
	dir := s.TicketDir(ticketID, issue)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return dir, nil
}

// RawURL returns the download URL of an attachment payload
func (s *Stager) RawURL(ticketID int, filename string) string {
	return s.tracURL + "/raw-attachment/ticket/" + strconv.Itoa(ticketID) + "/" + url.PathEscape(filename)
}

// Fetch downloads the attachment into dir and returns the written path
func (s *Stager) Fetch(ctx context.Context, dir string, a types.Attachment) (string, error) {
	src := s.RawURL(a.TicketID, a.Filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", src, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: status %s", src, resp.Status)
	}

	// Trac filenames never contain a separator; Base guards against a
	// crafted row escaping the staging directory.
	dst := filepath.Join(dir, filepath.Base(a.Filename))
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dst, err)
	}

	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dst, err)
	}

	s.logger.Info("staged attachment",
		zap.Int("ticket", a.TicketID),
		zap.String("file", dst),
		zap.String("size", humanize.Bytes(uint64(n))),
	)

	return dst, nil
}
