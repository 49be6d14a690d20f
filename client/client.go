// Package client is a small consumer of the federation API, used by other
// servers and tooling to dereference objects and submit activities.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/graftnet/graft"
	"github.com/graftnet/graft/document"
)

const defaultTimeout = 3 * time.Second

type Client struct {
	client    *http.Client
	cache     *cache.Cache
	userAgent string
	base      string
}

// New builds a client against one server base URL, e.g. "https://example.org".
func New(base string) *Client {
	httpClient := http.Client{
		Timeout: defaultTimeout,
	}

	c := &Client{
		client:    &httpClient,
		cache:     cache.New(10*time.Minute, 15*time.Minute),
		userAgent: "graft-client",
		base:      base,
	}
	httpClient.Transport = c
	return c
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	return http.DefaultTransport.RoundTrip(req)
}

func (c *Client) fetch(ctx context.Context, path string, cached bool) ([]byte, error) {
	if cached {
		if hit, ok := c.cache.Get(path); ok {
			return hit.([]byte), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Accept", graft.MimeActivityJSON)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}
	if cached {
		c.cache.Set(path, body, cache.DefaultExpiration)
	}
	return body, nil
}

func (c *Client) fetchObject(ctx context.Context, path string, cached bool) (*document.Map, error) {
	body, err := c.fetch(ctx, path, cached)
	if err != nil {
		return nil, err
	}
	doc, err := document.ParseMap(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %v", err)
	}
	return doc, nil
}

// GetActor dereferences an actor by reference. Actor documents are cached.
func (c *Client) GetActor(ctx context.Context, ref string) (*document.Map, error) {
	return c.fetchObject(ctx, "/of/"+ref, true)
}

// GetPost dereferences the current version of a post.
func (c *Client) GetPost(ctx context.Context, ref string) (*document.Map, error) {
	return c.fetchObject(ctx, "/post/"+ref, false)
}

// GetPostAt dereferences the version of a post that was current at t.
func (c *Client) GetPostAt(ctx context.Context, ref string, t time.Time) (*document.Map, error) {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return c.fetchObject(ctx, "/post/"+stamp+"-"+graft.ExtractID(ref), false)
}

// GetOutbox dereferences an actor's outbox collection.
func (c *Client) GetOutbox(ctx context.Context, ref string) (*document.Map, error) {
	return c.fetchObject(ctx, "/by/"+ref, false)
}

// GetHistory fetches every stored version of an object, oldest first.
func (c *Client) GetHistory(ctx context.Context, id string) (document.Array, error) {
	body, err := c.fetch(ctx, "/log/"+id, false)
	if err != nil {
		return nil, err
	}
	v, err := document.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %v", err)
	}
	arr, ok := v.(document.Array)
	if !ok {
		return nil, fmt.Errorf("changelog response is not an array")
	}
	return arr, nil
}

// Submit posts an activity to an actor's outbox and returns the id the
// server assigned to it.
func (c *Client) Submit(ctx context.Context, actor string, activity *document.Map) (string, error) {
	body, err := document.Encode(activity)
	if err != nil {
		return "", fmt.Errorf("failed to encode activity: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/by/"+actor, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", graft.MimeActivityJSON)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %v", err)
	}
	return result.ID, nil
}

// CreateAccount provisions an account from an actor document and returns
// the new actor id. The server keeps the submitted fields and decorates
// the actor URL with the `name` when one is given.
func (c *Client) CreateAccount(ctx context.Context, account map[string]any) (string, error) {
	body, err := json.Marshal(account)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/new-account", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %v", err)
	}
	return result.ID, nil
}
