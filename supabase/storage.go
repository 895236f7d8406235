package supabase

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/drewburns/ai-phonecall/objectstore"
	storage_go "github.com/supabase-community/storage-go"
)

// Put uploads body to the configured bucket under key.
func (c *Client) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if err := c.requireBucket(); err != nil {
		return err
	}

	upsert := false
	opts := storage_go.FileOptions{ContentType: &contentType, Upsert: &upsert}
	_, err := withContext(ctx, func() (storage_go.FileUploadResponse, error) {
		return c.storage.UploadFile(c.bucket, key, body, opts)
	})
	if err != nil {
		return fmt.Errorf("supabase upload %s: %w", key, transient(err))
	}
	return nil
}

// SignedURL returns a signed download URL for key valid for ttl, rounded up
// to whole seconds.
func (c *Client) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := c.requireBucket(); err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", fmt.Errorf("signed url ttl must be positive: %w", objectstore.ErrInvalidConfig)
	}

	seconds := int(math.Ceil(ttl.Seconds()))
	resp, err := withContext(ctx, func() (storage_go.SignedUrlResponse, error) {
		return c.storage.CreateSignedUrl(c.bucket, key, seconds)
	})
	if err != nil {
		return "", fmt.Errorf("supabase sign %s: %w", key, transient(err))
	}
	if strings.TrimSpace(resp.SignedURL) == "" {
		return "", fmt.Errorf("supabase sign %s: empty url", key)
	}
	return resp.SignedURL, nil
}

// Delete removes key from the bucket.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.requireBucket(); err != nil {
		return err
	}
	_, err := withContext(ctx, func() ([]storage_go.FileUploadResponse, error) {
		return c.storage.RemoveFile(c.bucket, []string{key})
	})
	if err != nil {
		return fmt.Errorf("supabase delete %s: %w", key, transient(err))
	}
	return nil
}

func (c *Client) requireBucket() error {
	if c.storage == nil || strings.TrimSpace(c.bucket) == "" {
		return fmt.Errorf("supabase bucket is required: %w", objectstore.ErrInvalidConfig)
	}
	return nil
}

var _ objectstore.Store = (*Client)(nil)
