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

// FarePolicy holds operational limits for payment codes and tickets.
// It is deployment-level policy, not per-company data.
type FarePolicy struct {
	MaxCodeCapacity int           `mapstructure:"maxCodeCapacity"`
	TicketCodeWidth int           `mapstructure:"ticketCodeWidth"`
	CodeTTL         time.Duration `mapstructure:"codeTTL"`
	MintMaxAttempts int           `mapstructure:"mintMaxAttempts"`
}

func DefaultFarePolicy() FarePolicy {
	return FarePolicy{
		MaxCodeCapacity: 100,
		TicketCodeWidth: 6,
		CodeTTL:         72 * time.Hour,
		MintMaxAttempts: 5,
	}
}

type FarePolicyHolder struct {
	current atomic.Value // holds FarePolicy
}

func NewFarePolicyHolder() (*FarePolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("farepolicy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/farebox/config") // Volume-mounted config
	v.AddConfigPath("/etc/farebox")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("FAREBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultFarePolicy()
		v.SetDefault("policy.maxCodeCapacity", defaults.MaxCodeCapacity)
		v.SetDefault("policy.ticketCodeWidth", defaults.TicketCodeWidth)
		v.SetDefault("policy.codeTTL", defaults.CodeTTL)
		v.SetDefault("policy.mintMaxAttempts", defaults.MintMaxAttempts)
	}

	var policy FarePolicy
	if err := v.UnmarshalKey("policy", &policy); err != nil {
		return nil, err
	}
	if err := validateFarePolicy(policy); err != nil {
		return nil, err
	}

	holder := &FarePolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated FarePolicy
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Printf("[fare-policy] reload failed: %v", err)
			return
		}
		if err := validateFarePolicy(updated); err != nil {
			log.Printf("[fare-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[fare-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *FarePolicyHolder) Get() FarePolicy {
	return h.current.Load().(FarePolicy)
}

// HolderFor wraps a fixed policy, bypassing file discovery. Test helper.
func HolderFor(policy FarePolicy) *FarePolicyHolder {
	holder := &FarePolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func validateFarePolicy(policy FarePolicy) error {
	if policy.MaxCodeCapacity < 1 {
		return errors.New("policy.maxCodeCapacity must be at least 1")
	}
	if policy.TicketCodeWidth < 4 || policy.TicketCodeWidth > 12 {
		return errors.New("policy.ticketCodeWidth must be between 4 and 12")
	}
	if policy.CodeTTL <= 0 {
		return errors.New("policy.codeTTL must be positive")
	}
	if policy.MintMaxAttempts < 1 {
		return errors.New("policy.mintMaxAttempts must be at least 1")
	}
	return nil
}
