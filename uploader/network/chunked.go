package network

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// ChunkSizeUnit is the granularity the Graph upload endpoint requires:
// every chunk except the last must be a multiple of 320 KiB.
const ChunkSizeUnit int64 = 320 * 1024

// byteRange is an inclusive [Start, End] slice of a file, annotated with the
// file's total size for the Content-Range declaration.
type byteRange struct {
	Start     int64
	End       int64
	TotalSize int64
}

func (r byteRange) length() int64 {
	return r.End - r.Start + 1
}

func (r byteRange) contentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.TotalSize)
}

// chunkRanges partitions totalSize bytes into contiguous, non-overlapping
// ranges of at most chunkSize bytes. Only the last range can be short.
// A zero-byte file yields no ranges.
func chunkRanges(totalSize, chunkSize int64) []byteRange {
	var ranges []byteRange
	for start := int64(0); start < totalSize; start += chunkSize {
		end := start + chunkSize - 1
		if end > totalSize-1 {
			end = totalSize - 1
		}
		ranges = append(ranges, byteRange{Start: start, End: end, TotalSize: totalSize})
	}
	return ranges
}

// UploadFileInChunks drives a resumable upload session to completion: it
// submits the file's byte ranges strictly in offset order, waiting for each
// response before computing the next range, and aborts on the first failed
// chunk without retrying it. Returns the uploaded item's web URL.
func (c *APIClient) UploadFileInChunks(session UploadSession, filePath string, chunkSize int64) (string, error) {
	if session.Size <= 0 {
		return "", fmt.Errorf("nothing to upload: %s is empty", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer func(file *os.File) {
		if err := file.Close(); err != nil {
			c.logger.Warnf("failed to close %s: %s", filePath, err)
		}
	}(file)

	ranges := chunkRanges(session.Size, chunkSize)
	c.logger.Debugf("Uploading %d chunks, %dB each", len(ranges), chunkSize)

	var sent int64
	for i, r := range ranges {
		c.logger.Printf("Uploading chunk %d/%d (%d%%)", i+1, len(ranges), sent*100/session.Size)

		data, err := readRange(file, r)
		if err != nil {
			return "", fmt.Errorf("read chunk %d/%d: %w", i+1, len(ranges), err)
		}

		response, err := c.uploadChunk(session, r, data)
		if err != nil {
			return "", fmt.Errorf("upload chunk %d/%d: %w", i+1, len(ranges), err)
		}
		sent += r.length()

		if r.End == session.Size-1 {
			if response.WebURL == "" {
				return "", fmt.Errorf("%w (last range: %s)", ErrMissingItemURL, r.contentRange())
			}
			return response.WebURL, nil
		}
	}

	// unreachable for Size > 0: the last range always ends at Size-1
	return "", fmt.Errorf("no final chunk produced for %s", filePath)
}

// readRange reads exactly the range's bytes from the file using positional
// access, so memory use stays bounded by the chunk size. A short read means
// the file shrank since it was stat'd and is surfaced as an error.
func readRange(file *os.File, r byteRange) ([]byte, error) {
	data, err := io.ReadAll(io.NewSectionReader(file, r.Start, r.length()))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != r.length() {
		return nil, fmt.Errorf("expected %d bytes at offset %d, got %d", r.length(), r.Start, len(data))
	}
	return data, nil
}

// uploadChunk sends one byte range to the session's upload URL. The response
// body is inspected for a Graph error payload: the server can accept the
// request on the transport level and still reject the chunk.
func (c *APIClient) uploadChunk(session UploadSession, r byteRange, data []byte) (chunkResponse, error) {
	req, err := http.NewRequest(http.MethodPut, session.UploadURL, bytes.NewReader(data))
	if err != nil {
		return chunkResponse{}, err
	}
	req.Header.Set("Content-Range", r.contentRange())
	req.ContentLength = int64(len(data))

	// The upload URL is pre-authenticated, no Authorization header needed.
	// Chunk requests must not be retried, so this bypasses the retrying client.
	resp, err := c.chunkClient.Do(req)
	if err != nil {
		return chunkResponse{}, err
	}
	defer c.closeBody(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return chunkResponse{}, err
	}

	var response chunkResponse
	if err := json.Unmarshal(body, &response); err == nil && response.Error != nil {
		return chunkResponse{}, fmt.Errorf("HTTP %d: %w", resp.StatusCode, response.Error)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return chunkResponse{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}

	return response, nil
}
