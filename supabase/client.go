package supabase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/drewburns/ai-phonecall/objectstore"
	"github.com/drewburns/ai-phonecall/profile"
	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// ErrProfileNotFound is returned when no active agent answers a number.
var ErrProfileNotFound = fmt.Errorf("agent profile: %w", profile.ErrNotFound)

const profilesTable = "phone_agents"

// Config holds Supabase connection configuration
type Config struct {
	URL      string
	APIKey   string
	CacheTTL time.Duration // Default: 5 minutes

	// Bucket is the storage bucket synthesized audio is uploaded to.
	// Only required when the client is used as an object store.
	Bucket string
}

// bucketAPI is the subset of *storage_go.Client the object store needs.
type bucketAPI interface {
	UploadFile(bucketID, relativePath string, data io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
	CreateSignedUrl(bucketID, filePath string, expiresIn int) (storage_go.SignedUrlResponse, error)
	RemoveFile(bucketID string, paths []string) ([]storage_go.FileUploadResponse, error)
}

type profileFetcher func(phoneNumber string) ([]AgentProfile, error)

// Client implements ProfileStore and objectstore.Store using Supabase
type Client struct {
	fetchProfiles profileFetcher
	storage       bucketAPI
	bucket        string
	cache         *cache
	cacheTTL      time.Duration
	now           func() time.Time
}

// cache provides thread-safe caching for profile lookups
type cache struct {
	mu       sync.RWMutex
	byNumber map[string]*cacheEntry[*AgentProfile]
}

// A nil value caches a number with no active agent.
type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// New creates a new Supabase client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	fetch := func(phoneNumber string) ([]AgentProfile, error) {
		var profiles []AgentProfile
		_, err := client.From(profilesTable).
			Select("*", "", false).
			Eq("phone_number", phoneNumber).
			Eq("is_active", "true").
			Limit(1, "").
			ExecuteTo(&profiles)
		return profiles, err
	}

	return newClient(fetch, client.Storage, cfg.Bucket, cfg.CacheTTL), nil
}

func newClient(fetch profileFetcher, storage bucketAPI, bucket string, ttl time.Duration) *Client {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &Client{
		fetchProfiles: fetch,
		storage:       storage,
		bucket:        bucket,
		cacheTTL:      ttl,
		now:           time.Now,
		cache: &cache{
			byNumber: make(map[string]*cacheEntry[*AgentProfile]),
		},
	}
}

// GetProfileByNumber retrieves the active agent profile for a dialed number
func (c *Client) GetProfileByNumber(ctx context.Context, phoneNumber string) (*AgentProfile, error) {
	phoneNumber = profile.NormalizeNumber(phoneNumber)
	if phoneNumber == "" {
		return nil, ErrProfileNotFound
	}

	// Check cache first
	if cached, ok := c.getFromCache(phoneNumber); ok {
		if cached == nil {
			return nil, ErrProfileNotFound
		}
		return cached, nil
	}

	profiles, err := withContext(ctx, func() ([]AgentProfile, error) {
		return c.fetchProfiles(phoneNumber)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get agent profile by number: %w", objectstore.Transient(err))
	}

	if len(profiles) == 0 {
		c.addToCache(phoneNumber, nil)
		return nil, ErrProfileNotFound
	}

	agent := &profiles[0]
	c.addToCache(phoneNumber, agent)

	return agent, nil
}

// Lookup implements profile.Source.
func (c *Client) Lookup(ctx context.Context, number string) (profile.Profile, error) {
	agent, err := c.GetProfileByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return profile.Profile{}, profile.ErrNotFound
		}
		return profile.Profile{}, err
	}
	return profile.Profile{
		Name:         agent.Name,
		Greeting:     agent.Greeting,
		SystemPrompt: agent.SystemPrompt,
		VoiceID:      agent.VoiceID,
	}, nil
}

// Close closes the Supabase client
func (c *Client) Close() error {
	// Supabase client doesn't require explicit close
	return nil
}

func (c *Client) getFromCache(key string) (*AgentProfile, bool) {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()

	if e, ok := c.cache.byNumber[key]; ok {
		if c.now().Before(e.expiresAt) {
			return e.value, true
		}
	}
	return nil, false
}

func (c *Client) addToCache(key string, value *AgentProfile) {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()

	c.cache.byNumber[key] = &cacheEntry[*AgentProfile]{
		value:     value,
		expiresAt: c.now().Add(c.cacheTTL),
	}
}

// Compile-time checks
var (
	_ ProfileStore   = (*Client)(nil)
	_ profile.Source = (*Client)(nil)
)
