// Package clinic holds per-clinic settings: operating hours, local zone and
// the schedule dashboard built on top of them.
package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const clockLayout = "15:04"

// DayHours is the operating window for a single day, in 24-hour local time.
type DayHours struct {
	Open  string `json:"open"`  // "09:00"
	Close string `json:"close"` // "17:00"
}

// bounds returns the offsets of open and close from local midnight.
func (d DayHours) bounds() (time.Duration, time.Duration, error) {
	open, err := time.Parse(clockLayout, strings.TrimSpace(d.Open))
	if err != nil {
		return 0, 0, fmt.Errorf("clinic: invalid open time %q", d.Open)
	}
	closing, err := time.Parse(clockLayout, strings.TrimSpace(d.Close))
	if err != nil {
		return 0, 0, fmt.Errorf("clinic: invalid close time %q", d.Close)
	}
	openOffset := time.Duration(open.Hour())*time.Hour + time.Duration(open.Minute())*time.Minute
	closeOffset := time.Duration(closing.Hour())*time.Hour + time.Duration(closing.Minute())*time.Minute
	if openOffset >= closeOffset {
		return 0, 0, fmt.Errorf("clinic: open %s must be before close %s", d.Open, d.Close)
	}
	return openOffset, closeOffset, nil
}

// BusinessHours overrides the operating window per weekday. Nil days fall
// back to the clinic's default hours.
type BusinessHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// GetHoursForDay returns the override for a weekday, if any.
func (b *BusinessHours) GetHoursForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return b.Sunday
	case time.Monday:
		return b.Monday
	case time.Tuesday:
		return b.Tuesday
	case time.Wednesday:
		return b.Wednesday
	case time.Thursday:
		return b.Thursday
	case time.Friday:
		return b.Friday
	case time.Saturday:
		return b.Saturday
	default:
		return nil
	}
}

func (b *BusinessHours) all() []*DayHours {
	return []*DayHours{b.Monday, b.Tuesday, b.Wednesday, b.Thursday, b.Friday, b.Saturday, b.Sunday}
}

// Config is a clinic's scheduling configuration.
type Config struct {
	ClinicID       string        `json:"clinic_id"`
	Name           string        `json:"name,omitempty"`
	Timezone       string        `json:"timezone"`
	OperatingHours DayHours      `json:"operating_hours"`
	BusinessHours  BusinessHours `json:"business_hours,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at,omitempty"`
}

// Defaults seeds the configuration of clinics that never saved one.
type Defaults struct {
	Hours    DayHours
	Timezone string
}

// DefaultDefaults is a 09:00-17:00 UTC day.
var DefaultDefaults = Defaults{Hours: DayHours{Open: "09:00", Close: "17:00"}, Timezone: "UTC"}

// DefaultConfig returns the configuration assumed for an unconfigured clinic.
func (d Defaults) DefaultConfig(clinicID string) *Config {
	tz := d.Timezone
	if tz == "" {
		tz = "UTC"
	}
	hours := d.Hours
	if hours.Open == "" || hours.Close == "" {
		hours = DefaultDefaults.Hours
	}
	return &Config{ClinicID: clinicID, Timezone: tz, OperatingHours: hours}
}

func (c *Config) clone() *Config {
	out := *c
	days := []**DayHours{
		&out.BusinessHours.Monday, &out.BusinessHours.Tuesday, &out.BusinessHours.Wednesday,
		&out.BusinessHours.Thursday, &out.BusinessHours.Friday, &out.BusinessHours.Saturday,
		&out.BusinessHours.Sunday,
	}
	for _, day := range days {
		if *day != nil {
			copied := **day
			*day = &copied
		}
	}
	return &out
}

// Location resolves the clinic's zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || c.Timezone == "" {
		return time.UTC
	}
	return loc
}

// HoursFor returns the window that applies on weekday.
func (c *Config) HoursFor(weekday time.Weekday) DayHours {
	if override := c.BusinessHours.GetHoursForDay(weekday); override != nil {
		return *override
	}
	return c.OperatingHours
}

// Validate checks the zone and every configured window.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ClinicID) == "" {
		return fmt.Errorf("clinic: clinic_id required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("clinic: unknown timezone %q", c.Timezone)
	}
	if _, _, err := c.OperatingHours.bounds(); err != nil {
		return err
	}
	for _, day := range c.BusinessHours.all() {
		if day == nil {
			continue
		}
		if _, _, err := day.bounds(); err != nil {
			return err
		}
	}
	return nil
}

// Window returns the half-open operating window of the clinic-local day
// containing t.
func (c *Config) Window(t time.Time) (time.Time, time.Time, error) {
	loc := c.Location()
	local := t.In(loc)
	open, closing, err := c.HoursFor(local.Weekday()).bounds()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.Add(open), midnight.Add(closing), nil
}

// ConfigStore persists clinic configurations.
type ConfigStore interface {
	Get(ctx context.Context, clinicID string) (*Config, error)
	Set(ctx context.Context, cfg *Config) error
}

// Store keeps clinic configs in Redis.
type Store struct {
	redis    *redis.Client
	defaults Defaults
}

// NewStore creates a new clinic config store.
func NewStore(redisClient *redis.Client, defaults Defaults) *Store {
	return &Store{redis: redisClient, defaults: defaults}
}

func (s *Store) key(clinicID string) string {
	return fmt.Sprintf("clinic:config:%s", clinicID)
}

// Get retrieves clinic config, returning the defaults if not found.
func (s *Store) Get(ctx context.Context, clinicID string) (*Config, error) {
	data, err := s.redis.Get(ctx, s.key(clinicID)).Bytes()
	if err == redis.Nil {
		return s.defaults.DefaultConfig(clinicID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Set saves clinic config.
func (s *Store) Set(ctx context.Context, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("clinic: marshal config: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(cfg.ClinicID), data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set config: %w", err)
	}
	return nil
}

// MemoryStore keeps configs in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	configs  map[string]*Config
	defaults Defaults
}

func NewMemoryStore(defaults Defaults) *MemoryStore {
	return &MemoryStore{configs: make(map[string]*Config), defaults: defaults}
}

func (s *MemoryStore) Get(_ context.Context, clinicID string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[clinicID]
	if !ok {
		return s.defaults.DefaultConfig(clinicID), nil
	}
	return cfg.clone(), nil
}

func (s *MemoryStore) Set(_ context.Context, cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ClinicID] = cfg.clone()
	return nil
}

// HoursResolver answers operating-window lookups for the scheduler.
type HoursResolver struct {
	store ConfigStore
}

func NewHoursResolver(store ConfigStore) *HoursResolver {
	return &HoursResolver{store: store}
}

// DayWindow returns the clinic's [open, close) window for the local day
// containing day.
func (r *HoursResolver) DayWindow(ctx context.Context, clinicID string, day time.Time) (time.Time, time.Time, error) {
	cfg, err := r.store.Get(ctx, clinicID)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return cfg.Window(day)
}
