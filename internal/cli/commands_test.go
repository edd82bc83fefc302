package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meeting-digest/backend/internal/storage/models"
)

// testEnv points the configuration at a temp database and a fake feed that
// serves two events for rep@acme.com.
func testEnv(t *testing.T) string {
	t.Helper()

	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k1" || r.URL.Query().Get("rep_email") != "rep@acme.com" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total":2,"per_page":10,"current_page":1,"data":[
			{"id":2,"changed":"2026-03-01T10:00:00","start":"2026-03-02T14:00:00","end":"2026-03-02T14:30:00","title":"Sync","accepted":["rep@acme.com"],"rejected":[]},
			{"id":1,"changed":"2026-03-01T09:00:00","start":"2026-03-02T09:00:00","end":"2026-03-02T09:45:00","title":"Intro","accepted":["jane@x.com"],"rejected":["bob@x.com"]}
		]}`))
	}))
	t.Cleanup(feedSrv.Close)

	personSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(personSrv.Close)

	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("CALENDAR_API_URL", feedSrv.URL)
	t.Setenv("CALENDAR_API_KEYS", "rep@acme.com=k1")
	t.Setenv("PERSON_API_URL", personSrv.URL)
	t.Setenv("INTERNAL_DOMAIN", "acme.com")
	t.Setenv("RETRY_MAX_ATTEMPTS", "1")
	t.Setenv("LOG_LEVEL", "error")

	return filepath.Join(dir, "absent.env")
}

func execute(t *testing.T, envFile string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--env-file", envFile))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUserAddThenSync(t *testing.T) {
	envFile := testEnv(t)

	out, err := execute(t, envFile, "user", "add", "--email", "Rep@Acme.com", "--timezone", "UTC", "--format", "json")
	require.NoError(t, err)
	var user models.User
	require.NoError(t, json.Unmarshal([]byte(out), &user))
	assert.Equal(t, "rep@acme.com", user.Email)
	assert.NotEmpty(t, user.ID)

	out, err = execute(t, envFile, "sync", "--user", "rep@acme.com")
	require.NoError(t, err)
	assert.Contains(t, out, "full\tdone\tprocessed=2 skipped=0 pages=1")
	assert.NotContains(t, out, "checkpoint=unchanged")

	out, err = execute(t, envFile, "sync", "--user", user.ID, "--format", "json")
	require.NoError(t, err)
	var result models.SyncResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, models.SyncModeIncremental, result.Mode)
	assert.Equal(t, models.SyncOutcomeStoppedEarly, result.Outcome)
	assert.Zero(t, result.Processed)

	out, err = execute(t, envFile, "user", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "rep@acme.com")
	assert.NotContains(t, out, "never")
}

func TestUserAdd_Duplicate(t *testing.T) {
	envFile := testEnv(t)

	_, err := execute(t, envFile, "user", "add", "--email", "rep@acme.com")
	require.NoError(t, err)

	_, err = execute(t, envFile, "user", "add", "--email", "REP@acme.com")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSync_UnknownUser(t *testing.T) {
	envFile := testEnv(t)

	_, err := execute(t, envFile, "sync", "--user", "ghost@acme.com")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, envFile, "sync", "--full")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEnrich_InternalIsRefused(t *testing.T) {
	envFile := testEnv(t)

	_, err := execute(t, envFile, "enrich", "ann@ACME.com")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEnrich_LookupDownNothingCached(t *testing.T) {
	envFile := testEnv(t)

	_, err := execute(t, envFile, "enrich", "jane@x.com")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestDigest_NoUsers(t *testing.T) {
	envFile := testEnv(t)

	out, err := execute(t, envFile, "digest")
	require.NoError(t, err)
	assert.Contains(t, out, "users=0 succeeded=0 empty=0 failed=0")
}

func TestConfigErrorIsCommandError(t *testing.T) {
	envFile := testEnv(t)
	t.Setenv("DIGEST_WORKERS", "zero")

	_, err := execute(t, envFile, "user", "list")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPrintSyncResult(t *testing.T) {
	at := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

	var out bytes.Buffer
	printSyncResult(&out, models.SyncResult{UserEmail: "rep@acme.com", Mode: models.SyncModeIncremental, Outcome: models.SyncOutcomeInterrupted, PagesFetched: 1})
	printSyncResult(&out, models.SyncResult{UserEmail: "rep@acme.com", Mode: models.SyncModeIncremental, Outcome: models.SyncOutcomeDone, Checkpoint: &at})

	assert.Equal(t,
		"rep@acme.com\tincremental\tinterrupted\tprocessed=0 skipped=0 pages=1 checkpoint=unchanged\n"+
			"rep@acme.com\tincremental\tdone\tprocessed=0 skipped=0 pages=0 checkpoint=2026-03-02T07:00:00Z\n",
		out.String())
}
