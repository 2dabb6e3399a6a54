package uploader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"golang.org/x/sync/errgroup"

	"github.com/bitrise-steplib/bitrise-step-sharepoint-upload/uploader/network"
)

// Files up to this size skip the upload session and go through a single PUT.
const smallFileSizeLimit int64 = 4 * 1024 * 1024

// FileResult is the outcome of one file's upload job.
type FileResult struct {
	Path   string
	WebURL string
	Err    error
}

// uploadAll runs one upload job per file and joins all of them before
// returning. A failing file never cancels its siblings; every job's outcome
// is collected and reported independently.
func (u *Uploader) uploadAll(client *network.APIClient, drive network.Drive, config config) []FileResult {
	var group errgroup.Group
	if config.Parallelism > 0 {
		group.SetLimit(config.Parallelism)
	}

	results := make([]FileResult, len(config.Paths))
	for i, path := range config.Paths {
		i, path := i, path
		group.Go(func() error {
			results[i] = u.uploadFile(client, drive, path, config)
			return nil
		})
	}
	// jobs report their outcome through the results slice, not as errors
	_ = group.Wait()

	for _, result := range results {
		if result.Err != nil {
			u.logger.Errorf("Failed to upload %s: %s", result.Path, result.Err)
		} else {
			u.logger.Donef("Uploaded %s: %s", result.Path, result.WebURL)
		}
	}

	return results
}

func (u *Uploader) uploadFile(client *network.APIClient, drive network.Drive, path string, config config) FileResult {
	result := FileResult{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		result.Err = fmt.Errorf("stat file: %w", err)
		return result
	}
	size := info.Size()
	u.logger.Printf("Uploading %s (%s)", path, units.HumanSizeWithPrecision(float64(size), 3))

	fileName := filepath.Base(path)
	if size <= smallFileSizeLimit {
		result.WebURL, result.Err = client.UploadSmallFile(drive, config.DestinationPath, fileName, path)
		return result
	}

	session, err := client.CreateUploadSession(drive, config.DestinationPath, fileName, size)
	if err != nil {
		result.Err = fmt.Errorf("create upload session: %w", err)
		return result
	}

	result.WebURL, result.Err = client.UploadFileInChunks(session, path, config.ChunkSize)
	return result
}
