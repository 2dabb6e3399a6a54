// Package network implements the Microsoft Graph calls of the step:
// site and drive resolution, the single-request upload path for small files,
// and the resumable upload session used for everything larger.
package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL is the production Graph API endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// ErrMissingUploadURL means the upload session response carried no usable
// upload endpoint. Terminal for the file, not retried.
var ErrMissingUploadURL = errors.New("upload session response contains no upload URL")

// ErrMissingItemURL means the server accepted every byte but did not confirm
// the uploaded item. Reported as a failure for caller visibility.
var ErrMissingItemURL = errors.New("upload finished but the response contains no item URL")

// APIClient talks to the Graph API on behalf of a single run.
// The access token is read-only and safe to share across upload jobs.
type APIClient struct {
	httpClient  *retryablehttp.Client
	chunkClient *http.Client
	baseURL     string
	accessToken string
	logger      log.Logger
}

// NewAPIClient creates a Graph API client. JSON endpoints go through the
// retrying client; chunk PUTs use the underlying plain client because chunk
// failures are final in this design.
func NewAPIClient(client *retryablehttp.Client, baseURL string, accessToken string, logger log.Logger) *APIClient {
	chunkClient := client.HTTPClient
	if chunkClient == nil {
		chunkClient = &http.Client{}
	}

	return &APIClient{
		httpClient:  client,
		chunkClient: chunkClient,
		baseURL:     baseURL,
		accessToken: accessToken,
		logger:      logger,
	}
}

// ResolveDrive maps a site hostname, site name and drive display name to a
// drive handle. Failures here are fatal for the whole run.
func (c *APIClient) ResolveDrive(hostname, siteName, driveName string) (Drive, error) {
	siteID, err := c.resolveSite(hostname, siteName)
	if err != nil {
		return Drive{}, fmt.Errorf("resolve site %s: %w", siteName, err)
	}

	drives, err := c.listDrives(siteID)
	if err != nil {
		return Drive{}, fmt.Errorf("list drives of site %s: %w", siteName, err)
	}

	for _, drive := range drives.Value {
		if drive.Name == driveName {
			return Drive{ID: drive.ID}, nil
		}
	}

	return Drive{}, fmt.Errorf("site %s has no drive named %s", siteName, driveName)
}

func (c *APIClient) resolveSite(hostname, siteName string) (string, error) {
	apiURL := fmt.Sprintf("%s/sites/%s:/sites/%s", c.baseURL, hostname, url.PathEscape(siteName))

	req, err := retryablehttp.NewRequest(http.MethodGet, apiURL, nil)
	if err != nil {
		return "", err
	}
	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", unwrapError(resp)
	}

	var response siteResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", fmt.Errorf("site response contains no site ID")
	}

	return response.ID, nil
}

func (c *APIClient) listDrives(siteID string) (driveListResponse, error) {
	apiURL := fmt.Sprintf("%s/sites/%s/drives", c.baseURL, siteID)

	req, err := retryablehttp.NewRequest(http.MethodGet, apiURL, nil)
	if err != nil {
		return driveListResponse{}, err
	}
	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return driveListResponse{}, err
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return driveListResponse{}, unwrapError(resp)
	}

	var response driveListResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return driveListResponse{}, err
	}

	return response, nil
}

// UploadSmallFile uploads the whole file in a single request and returns the
// uploaded item's web URL. Existing items with the same name are replaced.
func (c *APIClient) UploadSmallFile(drive Drive, destPath, fileName, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	apiURL := fmt.Sprintf("%s/drives/%s/root:/%s:/content", c.baseURL, drive.ID, escapeItemPath(destPath, fileName))

	req, err := retryablehttp.NewRequest(http.MethodPut, apiURL, data)
	if err != nil {
		return "", err
	}
	c.setAuthHeader(req)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", unwrapError(resp)
	}

	var item driveItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return "", err
	}
	if item.WebURL == "" {
		return "", ErrMissingItemURL
	}

	return item.WebURL, nil
}

// CreateUploadSession opens a resumable upload session for one file with a
// conflict policy of replacing any existing item of the same name.
func (c *APIClient) CreateUploadSession(drive Drive, destPath, fileName string, size int64) (UploadSession, error) {
	requestBody, err := json.Marshal(createUploadSessionRequest{
		Item: uploadItemProperties{
			ConflictBehavior: "replace",
			Name:             fileName,
		},
	})
	if err != nil {
		return UploadSession{}, err
	}

	apiURL := fmt.Sprintf("%s/drives/%s/root:/%s:/createUploadSession", c.baseURL, drive.ID, escapeItemPath(destPath, fileName))

	req, err := retryablehttp.NewRequest(http.MethodPost, apiURL, requestBody)
	if err != nil {
		return UploadSession{}, err
	}
	c.setAuthHeader(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UploadSession{}, err
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return UploadSession{}, unwrapError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return UploadSession{}, err
	}

	var response uploadSessionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return UploadSession{}, fmt.Errorf("decode session response: %w (%s)", err, body)
	}
	if response.UploadURL == "" {
		return UploadSession{}, fmt.Errorf("%w: %s", ErrMissingUploadURL, body)
	}

	return UploadSession{UploadURL: response.UploadURL, Size: size}, nil
}

func (c *APIClient) setAuthHeader(req *retryablehttp.Request) {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
}

func (c *APIClient) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Printf(err.Error())
	}
}

// escapeItemPath joins the destination folder and file name into a
// URL-escaped drive-relative path.
func escapeItemPath(destPath, fileName string) string {
	itemPath := path.Join(destPath, fileName)
	segments := strings.Split(itemPath, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// unwrapError surfaces the raw server response to the operator. A Graph error
// payload is preferred over the plain body when the response carries one.
func unwrapError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var payload graphErrorBody
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		return fmt.Errorf("HTTP %d: %w", resp.StatusCode, payload.Error)
	}

	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
}
