package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"library-api/internal/bootstrap"
	"library-api/internal/config"
	"library-api/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	recipients [][]string
}

func (d *recordingDispatcher) Send(_ context.Context, recipients []string, _, _ string) error {
	d.recipients = append(d.recipients, recipients)
	return nil
}

func testEnv(t *testing.T) (*env, *bootstrap.Storage, *recordingDispatcher) {
	t.Helper()
	cfg := &config.Config{
		Storage: config.StorageConfig{Driver: "memory"},
		Batch:   config.BatchConfig{OverdueDays: 4},
		Server:  config.ServerConfig{Auth: config.AuthConfig{JWTSecret: "secret", TokenTTL: time.Hour}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	storage, err := bootstrap.OpenStorage(context.Background(), cfg, logger)
	require.NoError(t, err)

	dispatcher := &recordingDispatcher{}
	e := &env{
		loadConfig: func(string) (*config.Config, error) { return cfg, nil },
		newLogger:  func(config.LoggerConfig) *slog.Logger { return logger },
		openStorage: func(context.Context, *config.Config, *slog.Logger) (*bootstrap.Storage, error) {
			return storage, nil
		},
		newDispatcher: func(context.Context, *config.Config, *slog.Logger) (notify.Dispatcher, func(), error) {
			return dispatcher, func() {}, nil
		},
		applySchema: func(context.Context, *config.Config, *slog.Logger) error { return nil },
		now:         time.Now,
	}
	return e, storage, dispatcher
}

func execute(e *env, args ...string) (string, error) {
	out := &bytes.Buffer{}
	root := newRootCmd(e)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func seedLoan(t *testing.T, storage *bootstrap.Storage) {
	t.Helper()
	ctx := context.Background()
	_, err := storage.Library.CreateBook(ctx, "As Aventuras", "Artur", "001")
	require.NoError(t, err)
	_, err = storage.Library.CreateLoan(ctx, "001", "Fulano", "fulano@email.com")
	require.NoError(t, err)
}

func TestScanOverdue(t *testing.T) {
	inFiveDays := time.Now().AddDate(0, 0, 5).Format(time.DateOnly)

	t.Run("dry run lists loans without sending", func(t *testing.T) {
		e, storage, dispatcher := testEnv(t)
		seedLoan(t, storage)

		out, err := execute(e, "scan-overdue", "--dry-run", "--date", inFiveDays)

		require.NoError(t, err)
		assert.Contains(t, out, "overdue loans: 1")
		assert.Contains(t, out, "recipients: fulano@email.com")
		assert.Contains(t, out, "dry run, nothing sent")
		assert.Empty(t, dispatcher.recipients)
	})

	t.Run("sends one notification", func(t *testing.T) {
		e, storage, dispatcher := testEnv(t)
		seedLoan(t, storage)

		out, err := execute(e, "scan-overdue", "--date", inFiveDays)

		require.NoError(t, err)
		assert.Contains(t, out, "notification sent")
		assert.Equal(t, [][]string{{"fulano@email.com"}}, dispatcher.recipients)
	})

	t.Run("recent loans are not overdue", func(t *testing.T) {
		e, storage, _ := testEnv(t)
		seedLoan(t, storage)

		out, err := execute(e, "scan-overdue", "--dry-run")

		require.NoError(t, err)
		assert.Contains(t, out, "overdue loans: 0")
	})

	t.Run("rejects a malformed date", func(t *testing.T) {
		e, _, _ := testEnv(t)

		_, err := execute(e, "scan-overdue", "--date", "20/05/2024")
		assert.ErrorContains(t, err, "expected YYYY-MM-DD")
	})
}

func TestSchemaApply(t *testing.T) {
	e, _, _ := testEnv(t)

	out, err := execute(e, "schema", "apply")
	require.NoError(t, err)
	assert.Contains(t, out, "schema applied")

	e.applySchema = func(context.Context, *config.Config, *slog.Logger) error { return errors.New("connection refused") }
	_, err = execute(e, "schema", "apply")
	assert.ErrorContains(t, err, "connection refused")
}

func TestToken(t *testing.T) {
	e, _, _ := testEnv(t)

	out, err := execute(e, "token", "--username", "alice", "--ttl", "2h")
	require.NoError(t, err)
	assert.Contains(t, out, "Bearer ")
	assert.Contains(t, out, "expires: ")

	_, err = execute(e, "token")
	assert.ErrorContains(t, err, "--username must not be blank")
}

func TestConfigLoadFailure(t *testing.T) {
	e, _, _ := testEnv(t)
	e.loadConfig = func(string) (*config.Config, error) { return nil, errors.New("bad yaml") }

	_, err := execute(e, "token", "--username", "alice")
	assert.ErrorContains(t, err, "failed to load configuration")
}
