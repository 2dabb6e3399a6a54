package network

import "fmt"

// Drive is an opaque handle to a resolved SharePoint document library.
type Drive struct {
	ID string
}

// UploadSession is a server-side resumable upload handle for a single file.
// It is created once per file and never mutated afterwards.
type UploadSession struct {
	UploadURL string
	Size      int64
}

// GraphError is an application-level error payload returned by the Graph API.
// It can arrive in a response with any transport status, including 2xx.
type GraphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("graph API error %s: %s", e.Code, e.Message)
}

type graphErrorBody struct {
	Error *GraphError `json:"error"`
}

type siteResponse struct {
	ID string `json:"id"`
}

type driveListResponse struct {
	Value []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"value"`
}

type driveItemResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
}

type createUploadSessionRequest struct {
	Item uploadItemProperties `json:"item"`
}

type uploadItemProperties struct {
	ConflictBehavior string `json:"@microsoft.graph.conflictBehavior"`
	Name             string `json:"name"`
}

type uploadSessionResponse struct {
	UploadURL          string   `json:"uploadUrl"`
	ExpirationDateTime string   `json:"expirationDateTime"`
	NextExpectedRanges []string `json:"nextExpectedRanges"`
}

// chunkResponse is what a chunk PUT can carry back: an error payload, the
// next expected ranges (intermediate chunks) or the finished item (final chunk).
type chunkResponse struct {
	Error              *GraphError `json:"error"`
	NextExpectedRanges []string    `json:"nextExpectedRanges"`
	WebURL             string      `json:"webUrl"`
}
