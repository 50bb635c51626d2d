package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltacar/server/internal/token"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		tokenEmail = ""
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCmd_Executes(t *testing.T) {
	originalVersion := version
	version = "test-version-1.0.0"
	defer func() { version = originalVersion }()

	out, err := execute(t, "version")

	assert.NoError(t, err)
	assert.Contains(t, out, "deltacar-server version test-version-1.0.0")
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "token", "services", "version"})
}

func TestTokenCmd_IssuesVerifiableToken(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "cli-secret")

	out, err := execute(t, "token", "--email", "ann@example.com", "--claim", "role=admin")
	require.NoError(t, err)

	svc, err := token.NewService("cli-secret")
	require.NoError(t, err)
	id, err := svc.Verify(strings.TrimSpace(out))
	require.NoError(t, err)

	email, ok := id.Email()
	assert.True(t, ok)
	assert.Equal(t, "ann@example.com", email)
	assert.Equal(t, "admin", id["role"])
}

func TestTokenCmd_RequiresEmail(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "cli-secret")

	_, err := execute(t, "token")
	assert.ErrorContains(t, err, "--email is required")
}

func TestTokenCmd_RequiresSecret(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "")

	_, err := execute(t, "token", "--email", "ann@example.com")
	assert.Error(t, err)
}

func TestReadServiceFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.json")
	content := `[
		{"_id": "3c0f3c2e-7c9b-4f55-a3c8-0d7e2b8f1a44", "title": "Oil change", "price": 49.5},
		{"title": "Brake pads", "description": "front axle", "price": 120}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	docs, err := readServiceFile(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Oil change", docs[0]["title"])
	assert.Equal(t, "front axle", docs[1]["description"])
}

func TestReadServiceFile_Rejects(t *testing.T) {
	cases := map[string]string{
		"not an array": `{"title": "Oil change"}`,
		"null entry":   `[{"title": "Oil change"}, null]`,
		"empty":        `[]`,
		"broken":       `[{"title": `,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "services.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			_, err := readServiceFile(path)
			assert.Error(t, err)
		})
	}
}

func TestReadServiceFile_Missing(t *testing.T) {
	_, err := readServiceFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestReadServiceFile_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.toml")
	content := `
[[services]]
title = "Oil change"
price = 49.5

[[services]]
title = "Wheel alignment"
price = 80
tags = ["wheels", "steering"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	docs, err := readServiceFile(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Oil change", docs[0]["title"])
	assert.Equal(t, 49.5, docs[0]["price"])
	assert.EqualValues(t, 80, docs[1]["price"])
	assert.Len(t, docs[1]["tags"], 2)
}

func TestWatchServiceFile_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- watchServiceFile(ctx, path, func() {
			select {
			case reloaded <- struct{}{}:
			default:
			}
		})
	}()

	// The watcher has no ready signal, so rewrite the file until a reload
	// lands. Writes must be further apart than reloadDelay or each one
	// postpones the reload again.
	tick := time.NewTicker(2 * reloadDelay)
	defer tick.Stop()
	deadline := time.After(5 * time.Second)
	for waiting := true; waiting; {
		select {
		case <-reloaded:
			waiting = false
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte(`[{"title":"Oil change"}]`), 0o600))
		case <-deadline:
			t.Fatal("no reload after writing the watched file")
		}
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestWatchServiceFile_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var reloads int
	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "other.json"), []byte(`[]`), 0o600)
	}()
	err := watchServiceFile(ctx, path, func() { reloads++ })

	assert.NoError(t, err)
	assert.Zero(t, reloads)
}
