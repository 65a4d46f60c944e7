package tasks

import (
	"time"

	"github.com/wote-dev/simplr-sub001/config"
	"github.com/wote-dev/simplr-sub001/domain"
)

// Options tunes the store. Zero fields fall back to the defaults from the
// config package.
type Options struct {
	// Profile is activated at startup unless the persisted registry
	// remembers a different active profile.
	Profile string
	// SearchMinLength is the shortest query, in runes, treated as a text
	// search. Shorter queries match everything.
	SearchMinLength int
	// CategoryCacheTTL bounds the category lookup cache.
	CategoryCacheTTL time.Duration
	// SaveDelay is the coalescing window between a mutation and its
	// snapshot write.
	SaveDelay    time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
	// DispatchTimeout bounds each reminder or search index call.
	DispatchTimeout time.Duration
	// EventBuffer is the per-subscriber event channel capacity.
	EventBuffer int
}

// FromConfig converts resolved configuration into store options.
func FromConfig(cfg config.Config) Options {
	return Options{
		Profile:          cfg.Profile,
		SearchMinLength:  cfg.SearchMinLength,
		CategoryCacheTTL: cfg.CategoryCacheTTL.Std(),
		SaveDelay:        cfg.SaveDelay.Std(),
		RetryInitial:     cfg.RetryInitial.Std(),
		RetryMax:         cfg.RetryMax.Std(),
		DispatchTimeout:  cfg.DispatchTimeout.Std(),
		EventBuffer:      cfg.EventBuffer,
	}
}

// DefaultOptions resolves options from the environment alone.
func DefaultOptions() Options {
	return FromConfig(config.Default())
}

func (o *Options) withDefaults() {
	if o.Profile == "" {
		o.Profile = domain.DefaultProfile
	}
	o.Profile = domain.NormalizeProfile(o.Profile)
	if o.SearchMinLength <= 0 {
		o.SearchMinLength = 2
	}
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = 5 * time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
}
