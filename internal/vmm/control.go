package vmm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/forgevm/forge/internal/forgeerr"
)

// controlClient issues HTTP/1.1 requests against a filesystem-named
// stream socket exported by the VMM. No TCP is involved and no
// keep-alive is assumed: every call opens a fresh connection.
type controlClient struct {
	httpClient *http.Client
	base       string
}

func newControlClient(socketPath string) *controlClient {
	return &controlClient{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DisableKeepAlives: true,
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 30 * time.Second,
		},
		base: "http://localhost",
	}
}

// request issues one HTTP call against the control socket and returns
// the response body. A non-2xx status, a connect failure, or a
// body-read failure all surface as *forgeerr.ApiError.
func (c *controlClient) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &forgeerr.ApiError{Msg: fmt.Sprintf("marshal request body for %s: %s", path, err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, &forgeerr.ApiError{Msg: fmt.Sprintf("build request for %s: %s", path, err)}
	}
	req.Host = "localhost"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &forgeerr.ApiError{Msg: fmt.Sprintf("connect for %s: %s", path, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &forgeerr.ApiError{Msg: fmt.Sprintf("read response body for %s: %s", path, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		truncated := respBody
		const maxBody = 2048
		if len(truncated) > maxBody {
			truncated = truncated[:maxBody]
		}
		return nil, &forgeerr.ApiError{Msg: fmt.Sprintf("%s %s returned %d: %s", method, path, resp.StatusCode, truncated)}
	}

	return respBody, nil
}

func (c *controlClient) put(ctx context.Context, path string, body any) error {
	_, err := c.request(ctx, http.MethodPut, path, body)
	return err
}

func (c *controlClient) patch(ctx context.Context, path string, body any) error {
	_, err := c.request(ctx, http.MethodPatch, path, body)
	return err
}
