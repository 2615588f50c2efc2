package httpstore

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"strings"

	"golang.org/x/xerrors"

	"github.com/forgebuild/forge/internal/fingerprint"
)

// Client fetches and uploads blobs against a remote Server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: http.DefaultClient}
}

func (c *Client) Fetch(ctx context.Context, id fingerprint.Content) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/blob/"+string(id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("httpstore: fetch %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("httpstore: fetch %s: status %s", id, resp.Status)
	}
	return ioutil.ReadAll(resp.Body)
}

func (c *Client) Upload(ctx context.Context, blob []byte) (fingerprint.Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.BaseURL+"/blob/", bytes.NewReader(blob))
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", xerrors.Errorf("httpstore: upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", xerrors.Errorf("httpstore: upload: status %s", resp.Status)
	}
	id, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return fingerprint.Content(id), nil
}
