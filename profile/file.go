package profile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileProfiles struct {
	Agents map[string]Profile `yaml:"agents"`
}

// FileSource serves profiles from a YAML file of the form
//
//	agents:
//	  "+15550100":
//	    name: front-desk
//	    greeting: Hi, you've reached the front desk.
//	    system_prompt: You answer questions about opening hours.
//	    voice_id: 21m00Tcm4TlvDq8ikWAM
type FileSource struct {
	agents map[string]Profile
}

// LoadFile reads and decodes the profile file at path.
func LoadFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("read profile file %s: %w", path, err)
	}

	var raw fileProfiles
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode profile file %s: %w", path, err)
	}

	agents := make(map[string]Profile, len(raw.Agents))
	for number, p := range raw.Agents {
		key := NormalizeNumber(number)
		if key == "" {
			return nil, fmt.Errorf("profile file %s: invalid number %q", path, number)
		}
		agents[key] = p
	}
	return &FileSource{agents: agents}, nil
}

// Lookup implements Source.
func (f *FileSource) Lookup(_ context.Context, number string) (Profile, error) {
	p, ok := f.agents[NormalizeNumber(number)]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

var _ Source = (*FileSource)(nil)
