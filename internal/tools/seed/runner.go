// Package seed loads demo users and catalog events into the purchases store.
package seed

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/eventpass/eventpass/internal/platform/config"
	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/eventpass/eventpass/internal/services/purchases/storage"
	purchasessqlite "github.com/eventpass/eventpass/internal/services/purchases/storage/sqlite"
)

// EnvPrefix scopes the seed tool environment variables.
const EnvPrefix = "EVENTPASS_SEED_"

// Config holds seed tool configuration.
type Config struct {
	DBPath       string `env:"DB_PATH" envDefault:"data/purchases.db"`
	ManifestPath string `env:"MANIFEST"`
	Verbose      bool   `env:"VERBOSE"`
}

// ParseConfig loads EVENTPASS_SEED_* env defaults and then flags.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnvWithPrefix(&cfg, EnvPrefix); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "purchases SQLite database path")
	fs.StringVar(&cfg.ManifestPath, "manifest", cfg.ManifestPath, "YAML manifest path (default: embedded demo fixture)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose output")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Store is the persistence surface seeding writes through.
type Store interface {
	storage.UserStore
	storage.EventCatalogWriter
}

// Summary counts applied manifest entries.
type Summary struct {
	UsersCreated int
	UsersUpdated int
	Events       int
}

// Runner applies manifests to a store.
type Runner struct {
	store   Store
	out     io.Writer
	verbose bool
	clock   func() time.Time
}

// NewRunner returns a runner writing progress to out.
func NewRunner(store Store, out io.Writer, verbose bool) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{store: store, out: out, verbose: verbose, clock: time.Now}
}

// Apply upserts every user and event. Existing users keep their balance.
func (r *Runner) Apply(ctx context.Context, manifest Manifest) (Summary, error) {
	if r == nil || r.store == nil {
		return Summary{}, errors.New("seed store is required")
	}
	if err := manifest.Validate(); err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, user := range manifest.Users {
		record := model.User{
			ID:             strings.TrimSpace(user.ID),
			Email:          strings.TrimSpace(user.Email),
			CredentialHash: user.CredentialHash,
			DisplayName:    strings.TrimSpace(user.DisplayName),
			TokenBalance:   user.TokenBalance,
			CreatedAt:      r.clock().UTC(),
		}
		existing, err := r.store.GetUser(ctx, record.ID)
		switch {
		case err == nil:
			record.TokenBalance = existing.TokenBalance
			record.CreatedAt = existing.CreatedAt
			summary.UsersUpdated++
		case errors.Is(err, storage.ErrNotFound):
			summary.UsersCreated++
		default:
			return summary, fmt.Errorf("lookup user %s: %w", record.ID, err)
		}
		if err := r.store.PutUser(ctx, record); err != nil {
			return summary, fmt.Errorf("put user %s: %w", record.ID, err)
		}
		r.logf("user %s <%s> balance=%d", record.ID, record.Email, record.TokenBalance)
	}

	for _, event := range manifest.Events {
		record := model.Event{
			ID:              strings.TrimSpace(event.ID),
			Title:           strings.TrimSpace(event.Title),
			Subtitle:        event.Subtitle,
			Description:     event.Description,
			IsLive:          event.IsLive,
			ViewerCount:     event.ViewerCount,
			PriceTokens:     event.PriceTokens,
			StartsAt:        event.StartsAt.UTC(),
			EndsAt:          event.EndsAt.UTC(),
			PlaybackLocator: strings.TrimSpace(event.PlaybackLocator),
		}
		if err := r.store.PutEvent(ctx, record); err != nil {
			return summary, fmt.Errorf("put event %s: %w", record.ID, err)
		}
		summary.Events++
		r.logf("event %s %q price=%d", record.ID, record.Title, record.PriceTokens)
	}
	return summary, nil
}

func (r *Runner) logf(format string, args ...any) {
	if !r.verbose {
		return
	}
	fmt.Fprintf(r.out, format+"\n", args...)
}

// Run opens the database, applies the manifest and prints a summary.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("db path is required")
	}
	manifest, err := LoadManifest(cfg.ManifestPath)
	if err != nil {
		return err
	}
	store, err := purchasessqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open purchases sqlite store: %w", err)
	}
	defer store.Close()

	if out == nil {
		out = io.Discard
	}
	summary, err := NewRunner(store, out, cfg.Verbose).Apply(ctx, manifest)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded %q: %d users created, %d users updated, %d events\n",
		manifest.Name, summary.UsersCreated, summary.UsersUpdated, summary.Events)
	return nil
}
