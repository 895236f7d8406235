package supabase

import (
	"context"
	"time"
)

// ProfileStore provides access to the agent profiles kept in Supabase.
type ProfileStore interface {
	// GetProfileByNumber retrieves the active agent answering phoneNumber.
	GetProfileByNumber(ctx context.Context, phoneNumber string) (*AgentProfile, error)

	// Close releases resources held by the client.
	Close() error
}

// AgentProfile represents a row of the phone_agents table.
type AgentProfile struct {
	ID           string    `json:"id"`
	PhoneNumber  string    `json:"phone_number"`
	Name         string    `json:"name"`
	Greeting     string    `json:"greeting"`
	SystemPrompt string    `json:"system_prompt"`
	VoiceID      string    `json:"voice_id"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
