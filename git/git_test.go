package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceNameFromRepoURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/acme/Widgets.git", "widgets"},
		{"git@github.com:acme/widgets.git", "widgets"},
		{"git@github.com:widgets.git", "widgets"},
		{"https://github.com/acme/widgets/", "widgets"},
		{"/srv/repos/widgets", "widgets"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, ServiceNameFromRepoURL(tt.url))
		})
	}
}

func TestParseUserInfo(t *testing.T) {
	info := parseUserInfo("Ann|||ann@example.com|||2024-01-01T00:00:00+0000|||Bob|||bob@example.com|||2024-01-02T00:00:00+0000")
	assert.Equal(t, "Ann", info[TagCommitAuthorName])
	assert.Equal(t, "ann@example.com", info[TagCommitAuthorEmail])
	assert.Equal(t, "2024-01-01T00:00:00+0000", info[TagCommitAuthorDate])
	assert.Equal(t, "Bob", info[TagCommitCommitterName])
	assert.Equal(t, "bob@example.com", info[TagCommitCommitterEmail])
	assert.Equal(t, "2024-01-02T00:00:00+0000", info[TagCommitCommitterDate])

	assert.Empty(t, parseUserInfo(""))
	assert.Empty(t, parseUserInfo("only|||two"))
}

func TestTagsFromRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=Ann", "GIT_AUTHOR_EMAIL=ann@example.com",
			"GIT_COMMITTER_NAME=Bob", "GIT_COMMITTER_EMAIL=bob@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("checkout", "-q", "-b", "main")
	run("remote", "add", "origin", "https://github.com/acme/widgets.git")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hi"), 0o644))
	run("add", "README")
	run("-c", "commit.gpgsign=false", "commit", "-q", "-m", "initial commit")

	tags := Tags(context.Background(), dir, log.NewLogger(log.DiscardHandler()))
	assert.Equal(t, "https://github.com/acme/widgets.git", tags[TagRepositoryURL])
	assert.Equal(t, "main", tags[TagBranch])
	assert.Equal(t, "initial commit", tags[TagCommitMessage])
	assert.Len(t, tags[TagCommitSHA], 40)
	assert.Equal(t, "Ann", tags[TagCommitAuthorName])
	assert.Equal(t, "bob@example.com", tags[TagCommitCommitterEmail])
}
