package seed

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/*.yaml
var fixtureFS embed.FS

// DefaultFixture is the embedded manifest used when no path is given.
const DefaultFixture = "fixtures/demo.yaml"

// Manifest declares the users and catalog events to load.
type Manifest struct {
	Name   string          `yaml:"name"`
	Users  []ManifestUser  `yaml:"users"`
	Events []ManifestEvent `yaml:"events"`
}

// ManifestUser is one account with its opening balance.
type ManifestUser struct {
	ID             string `yaml:"id"`
	Email          string `yaml:"email"`
	DisplayName    string `yaml:"display_name,omitempty"`
	CredentialHash string `yaml:"credential_hash,omitempty"`
	TokenBalance   int64  `yaml:"token_balance"`
}

// ManifestEvent is one catalog entry.
type ManifestEvent struct {
	ID              string    `yaml:"id"`
	Title           string    `yaml:"title"`
	Subtitle        string    `yaml:"subtitle,omitempty"`
	Description     string    `yaml:"description,omitempty"`
	IsLive          bool      `yaml:"is_live,omitempty"`
	ViewerCount     int64     `yaml:"viewer_count,omitempty"`
	PriceTokens     int64     `yaml:"price_tokens"`
	StartsAt        time.Time `yaml:"starts_at"`
	EndsAt          time.Time `yaml:"ends_at"`
	PlaybackLocator string    `yaml:"playback_locator"`
}

// LoadManifest reads a manifest from path, or the embedded demo fixture when
// path is empty.
func LoadManifest(path string) (Manifest, error) {
	var (
		data []byte
		err  error
	)
	if strings.TrimSpace(path) == "" {
		data, err = fixtureFS.ReadFile(DefaultFixture)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("read seed manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("decode seed manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

// Validate checks ids are present and unique and values are in range.
func (m Manifest) Validate() error {
	userIDs := make(map[string]struct{}, len(m.Users))
	emails := make(map[string]struct{}, len(m.Users))
	for i, user := range m.Users {
		id := strings.TrimSpace(user.ID)
		email := strings.ToLower(strings.TrimSpace(user.Email))
		switch {
		case id == "":
			return fmt.Errorf("users[%d]: id is required", i)
		case email == "":
			return fmt.Errorf("users[%d]: email is required", i)
		case user.TokenBalance < 0:
			return fmt.Errorf("users[%d]: token_balance must not be negative", i)
		}
		if _, dup := userIDs[id]; dup {
			return fmt.Errorf("users[%d]: duplicate id %q", i, id)
		}
		if _, dup := emails[email]; dup {
			return fmt.Errorf("users[%d]: duplicate email %q", i, email)
		}
		userIDs[id] = struct{}{}
		emails[email] = struct{}{}
	}

	eventIDs := make(map[string]struct{}, len(m.Events))
	for i, event := range m.Events {
		id := strings.TrimSpace(event.ID)
		switch {
		case id == "":
			return fmt.Errorf("events[%d]: id is required", i)
		case strings.TrimSpace(event.Title) == "":
			return fmt.Errorf("events[%d]: title is required", i)
		case event.PriceTokens <= 0:
			return fmt.Errorf("events[%d]: price_tokens must be greater than zero", i)
		case !event.StartsAt.IsZero() && !event.EndsAt.IsZero() && event.EndsAt.Before(event.StartsAt):
			return fmt.Errorf("events[%d]: ends_at precedes starts_at", i)
		}
		if _, dup := eventIDs[id]; dup {
			return fmt.Errorf("events[%d]: duplicate id %q", i, id)
		}
		eventIDs[id] = struct{}{}
	}
	return nil
}
