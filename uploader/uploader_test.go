package uploader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUploader() *Uploader {
	return New(env.NewRepository(), log.NewLogger(), pathutil.NewPathChecker())
}

func validInput(t *testing.T) Input {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.bin")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0600))

	return Input{
		TenantID:        "tenant-1",
		ClientID:        "client-1",
		ClientSecret:    "s3cret",
		SiteHostname:    "contoso.sharepoint.com",
		SiteName:        "Marketing",
		DriveName:       "Documents",
		DestinationPath: "/deploy/",
		Paths:           path,
	}
}

func Test_createConfig(t *testing.T) {
	u := newTestUploader()
	input := validInput(t)

	config, err := u.createConfig(input)
	require.NoError(t, err)

	assert.Equal(t, "deploy", config.DestinationPath)
	assert.Equal(t, int64(10*1024*1024), config.ChunkSize, "default chunk size should be 10 MiB")
	assert.Equal(t, 0, config.Parallelism)
	assert.Len(t, config.Paths, 1)
	assert.Equal(t, "tenant-1", config.Credentials.TenantID)
}

func Test_createConfig_placeholderSecret(t *testing.T) {
	u := newTestUploader()
	input := validInput(t)
	input.ClientSecret = "$SHAREPOINT_CLIENT_SECRET"

	_, err := u.createConfig(input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "placeholder")
}

func Test_createConfig_chunkSize(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize string
		want      int64
		wantErr   bool
	}{
		{"default", "", 10 * 1024 * 1024, false},
		{"valid multiple of 320 KiB", "5MB", 5 * 1024 * 1024, false},
		{"not a multiple of 320 KiB", "1MB", 0, true},
		{"not a size", "banana", 0, true},
		{"zero", "0", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newTestUploader()
			input := validInput(t)
			input.ChunkSize = tt.chunkSize

			config, err := u.createConfig(input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && config.ChunkSize != tt.want {
				t.Errorf("createConfig() chunk size = %d, want %d", config.ChunkSize, tt.want)
			}
		})
	}
}

func Test_createConfig_negativeParallelism(t *testing.T) {
	u := newTestUploader()
	input := validInput(t)
	input.Parallelism = -2

	_, err := u.createConfig(input)
	require.Error(t, err)
}

func Test_expandPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0600))
	}

	u := newTestUploader()

	paths, err := u.expandPaths(filepath.Join(dir, "*.txt"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}, paths)

	paths, err = u.expandPaths(filepath.Join(dir, "a.txt") + "\n\n" + filepath.Join(dir, "c.log") + "\n")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "c.log")}, paths)
}

func Test_expandPaths_missingFile(t *testing.T) {
	u := newTestUploader()

	_, err := u.expandPaths(filepath.Join(t.TempDir(), "no-such-file.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file matches")
}

func Test_expandPaths_empty(t *testing.T) {
	u := newTestUploader()

	_, err := u.expandPaths("\n  \n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files to upload")
}
