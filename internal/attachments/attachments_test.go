package attachments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clintrovert/trac2github/pkg/types"
)

func newTracServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/grass/raw-attachment/ticket/7/my file.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRawURLEscapesFilename(t *testing.T) {
	s := NewStager("x", "https://trac.osgeo.org/grass/", nil, zap.NewNop())
	assert.Equal(t, "https://trac.osgeo.org/grass/raw-attachment/ticket/7/my%20file.txt", s.RawURL(7, "my file.txt"))
}

func TestPrepareAndFetch(t *testing.T) {
	srv := newTracServer(t)
	root := t.TempDir()
	s := NewStager(root, srv.URL+"/grass", srv.Client(), zap.NewNop())

	dir, err := s.Prepare(7, 3)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "TRAC_7_GIT_3"), dir)

	path, err := s.Fetch(context.Background(), dir, types.Attachment{TicketID: 7, Filename: "my file.txt"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestFetchMissing(t *testing.T) {
	srv := newTracServer(t)
	s := NewStager(t.TempDir(), srv.URL+"/grass", srv.Client(), zap.NewNop())

	dir, err := s.Prepare(7, 3)
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), dir, types.Attachment{TicketID: 7, Filename: "gone.txt"})
	assert.Error(t, err)
}

func TestPrepareFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o644))

	_, err := NewStager(root, "https://trac", nil, zap.NewNop()).Prepare(1, 1)
	assert.Error(t, err)
}

func TestArchiveCommit(t *testing.T) {
	root := t.TempDir()
	a, err := OpenArchive(root, "trac2github", "migration@example.com", zap.NewNop())
	require.NoError(t, err)

	dir := filepath.Join(root, "TRAC_1_GIT_1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0o644))

	hash, err := a.Commit([]string{file}, "Attachments for Trac ticket #1 (issue #1)")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	r, err := git.PlainOpen(root)
	require.NoError(t, err)
	head, err := r.Head()
	require.NoError(t, err)
	commit, err := r.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, "Attachments for Trac ticket #1 (issue #1)", commit.Message)
	assert.Equal(t, "trac2github", commit.Author.Name)

	_, err = commit.File("TRAC_1_GIT_1/a.txt")
	assert.NoError(t, err)

	again, err := OpenArchive(root, "trac2github", "migration@example.com", zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, again)
}
