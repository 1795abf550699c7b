package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// TieringPolicy decides when records move between tiers. Ages are in days
// relative to the record creation timestamp.
type TieringPolicy struct {
	Tier2MinAgeDays int `mapstructure:"tier2MinAgeDays"`
	Tier2MaxAgeDays int `mapstructure:"tier2MaxAgeDays"`
	Tier3MinAgeDays int `mapstructure:"tier3MinAgeDays"`

	BatchSize int `mapstructure:"batchSize"`
	Workers   int `mapstructure:"workers"`

	RunInterval time.Duration `mapstructure:"runInterval"`
}

func DefaultTieringPolicy() TieringPolicy {
	return TieringPolicy{
		Tier2MinAgeDays: 30,
		Tier2MaxAgeDays: 90,
		Tier3MinAgeDays: 90,
		BatchSize:       100,
		Workers:         4,
		RunInterval:     time.Hour,
	}
}

func (p TieringPolicy) WithDefaults() TieringPolicy {
	defaults := DefaultTieringPolicy()
	if p.Tier2MinAgeDays <= 0 {
		p.Tier2MinAgeDays = defaults.Tier2MinAgeDays
	}
	if p.Tier2MaxAgeDays <= 0 {
		p.Tier2MaxAgeDays = defaults.Tier2MaxAgeDays
	}
	if p.Tier3MinAgeDays <= 0 {
		p.Tier3MinAgeDays = defaults.Tier3MinAgeDays
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaults.BatchSize
	}
	if p.Workers <= 0 {
		p.Workers = defaults.Workers
	}
	if p.RunInterval <= 0 {
		p.RunInterval = defaults.RunInterval
	}
	return p
}

// Tier2MinAge returns the lower bound of the tier2 window as a duration.
func (p TieringPolicy) Tier2MinAge() time.Duration {
	return time.Duration(p.Tier2MinAgeDays) * 24 * time.Hour
}

func (p TieringPolicy) Tier2MaxAge() time.Duration {
	return time.Duration(p.Tier2MaxAgeDays) * 24 * time.Hour
}

func (p TieringPolicy) Tier3MinAge() time.Duration {
	return time.Duration(p.Tier3MinAgeDays) * 24 * time.Hour
}

// TieringPolicyHolder serves the current policy snapshot and hot-reloads it
// when the config file changes.
type TieringPolicyHolder struct {
	current atomic.Value // holds TieringPolicy
}

func NewTieringPolicyHolder() (*TieringPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("tiering")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/stratum/config") // Volume-mounted config
	v.AddConfigPath("/etc/stratum")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("STRATUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var policy TieringPolicy
	if err := v.UnmarshalKey("tiering", &policy); err != nil {
		return nil, err
	}
	policy = policy.WithDefaults()
	if err := validateTieringPolicy(policy); err != nil {
		return nil, err
	}

	holder := &TieringPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated TieringPolicy
		if err := v.UnmarshalKey("tiering", &updated); err != nil {
			log.Printf("[tiering-config] reload failed: %v", err)
			return
		}
		updated = updated.WithDefaults()
		if err := validateTieringPolicy(updated); err != nil {
			log.Printf("[tiering-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[tiering-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticTieringPolicyHolder pins a fixed policy, for tests and embedding.
func NewStaticTieringPolicyHolder(policy TieringPolicy) *TieringPolicyHolder {
	holder := &TieringPolicyHolder{}
	holder.current.Store(policy.WithDefaults())
	return holder
}

func (h *TieringPolicyHolder) Get() TieringPolicy {
	return h.current.Load().(TieringPolicy)
}

func validateTieringPolicy(policy TieringPolicy) error {
	if policy.Tier2MinAgeDays >= policy.Tier2MaxAgeDays {
		return errors.New("tiering.tier2MinAgeDays must be below tier2MaxAgeDays")
	}
	return nil
}
