package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/pinkv/pkg/api"
	"github.com/ssargent/pinkv/pkg/backend"
	"github.com/ssargent/pinkv/pkg/config"
	"github.com/ssargent/pinkv/pkg/di"
	"github.com/ssargent/pinkv/pkg/engine"
	"github.com/ssargent/pinkv/pkg/engine/enginetest"
	"github.com/ssargent/pinkv/pkg/pinned"
)

// run executes the CLI with args and returns stdout.
func run(t *testing.T, container *di.Container, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(container)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func initConfig(t *testing.T, backendName string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	_, err := run(t, di.NewContainer(), "", "init",
		"--config", path,
		"--data-dir", filepath.Join(dir, "data"),
		"--backend", backendName)
	require.NoError(t, err)
	return path
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	out, err := run(t, di.NewContainer(), "", "init", "--config", path, "--data-dir", dir, "--print-key")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration created at "+path)
	assert.Contains(t, out, "API key: ")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, config.BackendPebble, cfg.Engine.Backend)
	assert.Contains(t, out, cfg.Security.APIKey)

	t.Run("existing config is kept", func(t *testing.T) {
		out, err := run(t, di.NewContainer(), "", "init", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "already exists")

		again, err := config.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, cfg.Security.APIKey, again.Security.APIKey)
	})

	t.Run("force regenerates the key", func(t *testing.T) {
		_, err := run(t, di.NewContainer(), "", "init", "--config", path, "--force")
		require.NoError(t, err)

		again, err := config.LoadConfig(path)
		require.NoError(t, err)
		assert.NotEqual(t, cfg.Security.APIKey, again.Security.APIKey)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := run(t, di.NewContainer(), "", "init",
			"--config", filepath.Join(t.TempDir(), "c.yaml"), "--backend", "rocksdb")
		assert.Error(t, err)
	})
}

func TestKVCommands(t *testing.T) {
	for _, name := range []string{config.BackendPebble, config.BackendLogStore} {
		t.Run(name, func(t *testing.T) {
			path := initConfig(t, name)
			c := di.NewContainer()

			_, err := run(t, c, "", "put", "--config", path, "a", "hello")
			require.NoError(t, err)

			out, err := run(t, c, "", "get", "--config", path, "a")
			require.NoError(t, err)
			assert.Equal(t, "hello\n", out)

			_, err = run(t, c, "", "put", "--config", path, "a", "hi")
			require.NoError(t, err)
			out, err = run(t, c, "", "get", "--config", path, "--raw", "a")
			require.NoError(t, err)
			assert.Equal(t, "hi", out)

			_, err = run(t, c, "", "delete", "--config", path, "a")
			require.NoError(t, err)
			_, err = run(t, c, "", "get", "--config", path, "a")
			assert.ErrorIs(t, err, ErrKeyNotFound)

			_, err = run(t, c, "", "get", "--config", path, "missing")
			assert.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestPutFromStdin(t *testing.T) {
	path := initConfig(t, config.BackendLogStore)
	c := di.NewContainer()

	_, err := run(t, c, "streamed value", "put", "--config", path, "k", "-")
	require.NoError(t, err)

	out, err := run(t, c, "", "get", "--config", path, "--raw", "k")
	require.NoError(t, err)
	assert.Equal(t, "streamed value", out)
}

func TestGetUnknownColumnFamily(t *testing.T) {
	path := initConfig(t, config.BackendLogStore)

	_, err := run(t, di.NewContainer(), "", "get", "--config", path, "--cf", "nope", "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnknownColumnFamily)
}

// fakeStarter records what serve hands to the API server.
type fakeStarter struct {
	engine engine.Engine
	config api.ServerConfig
	deps   api.Deps
	serve  func(eng engine.Engine) error
}

func (f *fakeStarter) CreateServerStarter() api.ServerStarter { return f }

func (f *fakeStarter) StartServer(ctx context.Context, eng engine.Engine, config api.ServerConfig, deps api.Deps) error {
	f.engine = eng
	f.config = config
	f.deps = deps
	if f.serve != nil {
		return f.serve(eng)
	}
	return nil
}

func TestServeCommand(t *testing.T) {
	path := initConfig(t, config.BackendPebble)
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	fake, err := enginetest.NewFake()
	require.NoError(t, err)

	starter := &fakeStarter{}
	c := di.NewContainer()
	c.SetServerFactory(starter)
	c.SetEngineOpener(func(*config.Config, backend.Deps) (engine.Engine, error) {
		return fake, nil
	})

	out, err := run(t, c, "", "serve", "--config", path, "--port", "9300")
	require.NoError(t, err)
	assert.Contains(t, out, "Starting pinkv (fake)")

	assert.Same(t, fake, starter.engine)
	assert.Equal(t, 9300, starter.config.Port)
	assert.Equal(t, "127.0.0.1", starter.config.Bind)
	assert.Equal(t, cfg.Security.APIKey, starter.config.APIKey)
	assert.NotNil(t, starter.deps.Metrics)
	assert.NotNil(t, starter.deps.Gatherer)

	// serve closes the engine on the way out.
	assert.True(t, fake.Tracker().Closed())
}

func TestServeWaitsForOpenReads(t *testing.T) {
	path := initConfig(t, config.BackendPebble)

	fake, err := enginetest.NewFake()
	require.NoError(t, err)
	require.NoError(t, fake.Put([]byte("k"), []byte("v")))

	var closedAt time.Time
	starter := &fakeStarter{serve: func(eng engine.Engine) error {
		s, err := eng.GetPinned([]byte("k"))
		if err != nil {
			return err
		}
		// A read still streaming when the server returns.
		go func() {
			time.Sleep(50 * time.Millisecond)
			closedAt = time.Now()
			s.Close()
		}()
		return nil
	}}
	c := di.NewContainer()
	c.SetServerFactory(starter)
	c.SetEngineOpener(func(*config.Config, backend.Deps) (engine.Engine, error) {
		return fake, nil
	})

	_, err = run(t, c, "", "serve", "--config", path, "--drain-timeout", "5s")
	require.NoError(t, err)
	assert.False(t, closedAt.IsZero())
	assert.True(t, fake.Tracker().Closed())
	assert.Equal(t, int64(1), fake.Releases())
}

func TestServeDrainTimeout(t *testing.T) {
	path := initConfig(t, config.BackendPebble)

	fake, err := enginetest.NewFake()
	require.NoError(t, err)
	require.NoError(t, fake.Put([]byte("k"), []byte("v")))

	var held *pinned.Slice
	starter := &fakeStarter{serve: func(eng engine.Engine) error {
		held, err = eng.GetPinned([]byte("k"))
		return err
	}}
	c := di.NewContainer()
	c.SetServerFactory(starter)
	c.SetEngineOpener(func(*config.Config, backend.Deps) (engine.Engine, error) {
		return fake, nil
	})

	_, err = run(t, c, "", "serve", "--config", path, "--drain-timeout", "20ms")
	require.Error(t, err)
	assert.ErrorIs(t, err, pinned.ErrPinsOutstanding)
	assert.False(t, fake.Tracker().Closed())

	held.Close()
	require.NoError(t, fake.Close())
}

func TestServeRequiresAPIKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	require.NoError(t, config.SaveConfig(cfg, path))

	starter := &fakeStarter{}
	c := di.NewContainer()
	c.SetServerFactory(starter)

	_, err := run(t, c, "", "serve", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key configured")
	assert.Nil(t, starter.engine)
}
