// Package uploader implements the step: input validation, token and drive
// resolution, then one concurrent upload job per file.
package uploader

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitrise-io/go-steputils/v2/stepconf"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"

	"github.com/bitrise-steplib/bitrise-step-sharepoint-upload/uploader/network"
)

const defaultChunkSize = "10MB"

// Input is the step configuration read from the environment.
type Input struct {
	TenantID        string          `env:"tenant_id,required"`
	ClientID        string          `env:"client_id,required"`
	ClientSecret    stepconf.Secret `env:"client_secret,required"`
	SiteHostname    string          `env:"site_hostname,required"`
	SiteName        string          `env:"site_name,required"`
	DriveName       string          `env:"drive_name,required"`
	DestinationPath string          `env:"destination_path"`
	Paths           string          `env:"paths,required"`
	ChunkSize       string          `env:"chunk_size"`
	Parallelism     int             `env:"parallelism"`
	Verbose         bool            `env:"verbose"`
}

type config struct {
	Credentials     network.Credentials
	SiteHostname    string
	SiteName        string
	DriveName       string
	DestinationPath string
	Paths           []string
	ChunkSize       int64
	Parallelism     int
}

// Uploader uploads the configured files to a SharePoint drive.
type Uploader struct {
	envRepo     env.Repository
	logger      log.Logger
	pathChecker pathutil.PathChecker
}

// New ...
func New(envRepo env.Repository, logger log.Logger, pathChecker pathutil.PathChecker) *Uploader {
	return &Uploader{
		envRepo:     envRepo,
		logger:      logger,
		pathChecker: pathChecker,
	}
}

// Run ...
func (u *Uploader) Run() error {
	var input Input
	if err := stepconf.NewInputParser(u.envRepo).Parse(&input); err != nil {
		return fmt.Errorf("failed to parse inputs: %w", err)
	}
	stepconf.Print(input)
	u.logger.EnableDebugLog(input.Verbose)
	u.logger.Println()

	config, err := u.createConfig(input)
	if err != nil {
		return fmt.Errorf("failed to validate inputs: %w", err)
	}

	u.logger.Infof("Acquiring access token...")
	token, err := network.AcquireToken(context.Background(), config.Credentials, u.logger)
	if err != nil {
		return fmt.Errorf("failed to acquire access token: %w", err)
	}
	u.logger.Donef("Access token acquired")

	client := network.NewAPIClient(retryhttp.NewClient(u.logger), network.DefaultBaseURL, token, u.logger)

	u.logger.Infof("Resolving drive %s on site %s...", config.DriveName, config.SiteName)
	drive, err := client.ResolveDrive(config.SiteHostname, config.SiteName, config.DriveName)
	if err != nil {
		return fmt.Errorf("failed to resolve drive: %w", err)
	}
	u.logger.Donef("Drive resolved")
	u.logger.Println()

	results := u.uploadAll(client, drive, config)

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}
	u.logger.Println()
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(results))
	}
	u.logger.Donef("Uploaded %d file(s)", len(results))

	return nil
}

func (u *Uploader) createConfig(input Input) (config, error) {
	secret := string(input.ClientSecret)
	if strings.HasPrefix(secret, "$") {
		return config{}, fmt.Errorf("client_secret looks like an unexpanded placeholder (%s)", secret)
	}

	paths, err := u.expandPaths(input.Paths)
	if err != nil {
		return config{}, err
	}

	chunkSizeInput := input.ChunkSize
	if chunkSizeInput == "" {
		chunkSizeInput = defaultChunkSize
	}
	chunkSize, err := units.RAMInBytes(chunkSizeInput)
	if err != nil {
		return config{}, fmt.Errorf("invalid chunk_size %q: %w", chunkSizeInput, err)
	}
	if chunkSize <= 0 || chunkSize%network.ChunkSizeUnit != 0 {
		return config{}, fmt.Errorf("chunk_size should be a positive multiple of %s, got %s",
			units.BytesSize(float64(network.ChunkSizeUnit)), chunkSizeInput)
	}

	if input.Parallelism < 0 {
		return config{}, fmt.Errorf("parallelism should not be negative")
	}

	return config{
		Credentials: network.Credentials{
			TenantID:     input.TenantID,
			ClientID:     input.ClientID,
			ClientSecret: secret,
		},
		SiteHostname:    input.SiteHostname,
		SiteName:        input.SiteName,
		DriveName:       input.DriveName,
		DestinationPath: strings.Trim(input.DestinationPath, "/"),
		Paths:           paths,
		ChunkSize:       chunkSize,
		Parallelism:     input.Parallelism,
	}, nil
}

// expandPaths resolves the newline-separated path list into existing files.
// Glob patterns are expanded; a pattern or path matching nothing is an input
// error, so every dispatched path is proven to exist up front.
func (u *Uploader) expandPaths(rawPaths string) ([]string, error) {
	var paths []string
	for _, line := range strings.Split(rawPaths, "\n") {
		pattern := strings.TrimSpace(line)
		if pattern == "" {
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			exists, err := u.pathChecker.IsPathExists(pattern)
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, fmt.Errorf("no file matches %s", pattern)
			}
			matches = []string{pattern}
		}
		paths = append(paths, matches...)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to upload")
	}

	return paths, nil
}
