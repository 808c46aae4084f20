package videoapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"tiktorch/internal/core/domain"
	"tiktorch/internal/core/ports"
)

const (
	// StatusFinished is the only status value that ends polling.
	StatusFinished = "Finished"

	userIDField   = "userId"
	videoField    = "video"
	videoMIMEType = "video/mp4"

	// maxDrainBytes bounds how much of an ignored response body is read
	// before the connection is released.
	maxDrainBytes = 1 << 20
)

// Client speaks to the remote video processing service.
type Client struct {
	root      *url.URL
	userID    string
	transport ports.Transport
}

// NewClient creates a Client rooted at serviceRoot.
func NewClient(serviceRoot, userID string, transport ports.Transport) (*Client, error) {
	root, err := url.Parse(strings.TrimSpace(serviceRoot))
	if err != nil {
		return nil, fmt.Errorf("invalid service root %q: %w", serviceRoot, err)
	}
	if root.Scheme == "" || root.Host == "" {
		return nil, fmt.Errorf("service root %q must be an absolute URL", serviceRoot)
	}
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	return &Client{root: root, userID: userID, transport: transport}, nil
}

// UploadURL is the endpoint original videos are posted to.
func (c *Client) UploadURL() string {
	return c.endpoint("user", "original")
}

// StatusURL is the endpoint reporting the processing status of jobID.
func (c *Client) StatusURL(jobID string) string {
	return c.endpoint("status", jobID)
}

// ResultURL is the endpoint serving the processed video of jobID.
func (c *Client) ResultURL(jobID string) domain.ResultHandle {
	return domain.ResultHandle(c.endpoint("user", "result", jobID))
}

func (c *Client) endpoint(elem ...string) string {
	return c.root.JoinPath(elem...).String()
}

// Upload posts video as a multipart form under filename. The response
// body is ignored beyond its status code.
func (c *Client) Upload(ctx context.Context, filename string, video io.Reader) (int, error) {
	pr, pw := io.Pipe()
	defer pr.Close()

	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(c.writeUploadBody(mw, filename, video))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UploadURL(), pr)
	if err != nil {
		return 0, &domain.JobError{Op: domain.OpSubmit, Kind: domain.KindTransport, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.transport.Do(req)
	if err != nil {
		return 0, &domain.JobError{Op: domain.OpSubmit, Kind: domain.KindTransport, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if kind, failed := domain.ClassifyStatus(resp.StatusCode); failed {
		return resp.StatusCode, &domain.JobError{Op: domain.OpSubmit, Kind: kind, StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, nil
}

func (c *Client) writeUploadBody(mw *multipart.Writer, filename string, video io.Reader) error {
	if err := mw.WriteField(userIDField, c.userID); err != nil {
		return fmt.Errorf("failed to write %s field: %w", userIDField, err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, videoField, filename))
	h.Set("Content-Type", videoMIMEType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create video part: %w", err)
	}
	if _, err := io.Copy(part, video); err != nil {
		return fmt.Errorf("failed to read source video: %w", err)
	}
	return mw.Close()
}

type statusResponse struct {
	Status *string `json:"status"`
}

// Status fetches the processing status of jobID.
func (c *Client) Status(ctx context.Context, jobID string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.StatusURL(jobID), nil)
	if err != nil {
		return "", 0, &domain.JobError{Op: domain.OpPoll, Kind: domain.KindTransport, Err: err}
	}

	resp, err := c.transport.Do(req)
	if err != nil {
		return "", 0, &domain.JobError{Op: domain.OpPoll, Kind: domain.KindTransport, Err: err}
	}
	defer resp.Body.Close()

	if kind, failed := domain.ClassifyStatus(resp.StatusCode); failed {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		return "", resp.StatusCode, &domain.JobError{Op: domain.OpPoll, Kind: kind, StatusCode: resp.StatusCode}
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", resp.StatusCode, &domain.JobError{Op: domain.OpPoll, Kind: domain.KindParse, StatusCode: resp.StatusCode, Err: err}
	}
	if status.Status == nil {
		return "", resp.StatusCode, &domain.JobError{
			Op:         domain.OpPoll,
			Kind:       domain.KindParse,
			StatusCode: resp.StatusCode,
			Err:        errors.New(`response has no "status" field`),
		}
	}
	return *status.Status, resp.StatusCode, nil
}

// Download fetches the processed video at result. The caller must close
// the returned reader.
func (c *Client) Download(ctx context.Context, result domain.ResultHandle) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.String(), nil)
	if err != nil {
		return nil, &domain.JobError{Op: domain.OpFetch, Kind: domain.KindTransport, Err: err}
	}

	resp, err := c.transport.Do(req)
	if err != nil {
		return nil, &domain.JobError{Op: domain.OpFetch, Kind: domain.KindTransport, Err: err}
	}

	if kind, failed := domain.ClassifyStatus(resp.StatusCode); failed {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		resp.Body.Close()
		return nil, &domain.JobError{Op: domain.OpFetch, Kind: kind, StatusCode: resp.StatusCode}
	}

	return resp.Body, nil
}
