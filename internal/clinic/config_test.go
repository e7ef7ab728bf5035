package clinic

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestWindowUsesClinicZone(t *testing.T) {
	cfg := &Config{ClinicID: "c1", Timezone: "America/New_York", OperatingHours: DayHours{Open: "08:00", Close: "18:00"}}
	loc, _ := time.LoadLocation("America/New_York")

	// 02:00 UTC on Tuesday is still Monday evening in New York
	start, end, err := cfg.Window(time.Date(2025, 12, 9, 2, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if !start.Equal(time.Date(2025, 12, 8, 8, 0, 0, 0, loc)) {
		t.Errorf("start = %s", start)
	}
	if !end.Equal(time.Date(2025, 12, 8, 18, 0, 0, 0, loc)) {
		t.Errorf("end = %s", end)
	}
}

func TestWindowWeekdayOverride(t *testing.T) {
	cfg := &Config{
		ClinicID:       "c1",
		Timezone:       "UTC",
		OperatingHours: DayHours{Open: "09:00", Close: "17:00"},
		BusinessHours:  BusinessHours{Saturday: &DayHours{Open: "10:00", Close: "14:00"}},
	}
	saturday := time.Date(2025, 12, 13, 12, 0, 0, 0, time.UTC)
	start, end, err := cfg.Window(saturday)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if start.Hour() != 10 || end.Hour() != 14 {
		t.Errorf("expected 10-14 on Saturday, got %s-%s", start, end)
	}

	monday := time.Date(2025, 12, 8, 12, 0, 0, 0, time.UTC)
	start, end, _ = cfg.Window(monday)
	if start.Hour() != 9 || end.Hour() != 17 {
		t.Errorf("expected default hours on Monday, got %s-%s", start, end)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{ClinicID: "c1", Timezone: "UTC", OperatingHours: DayHours{Open: "08:00", Close: "18:00"}}, false},
		{"missing clinic", Config{Timezone: "UTC", OperatingHours: DayHours{Open: "08:00", Close: "18:00"}}, true},
		{"bad zone", Config{ClinicID: "c1", Timezone: "Mars/Olympus", OperatingHours: DayHours{Open: "08:00", Close: "18:00"}}, true},
		{"inverted", Config{ClinicID: "c1", Timezone: "UTC", OperatingHours: DayHours{Open: "18:00", Close: "08:00"}}, true},
		{"garbled", Config{ClinicID: "c1", Timezone: "UTC", OperatingHours: DayHours{Open: "8am", Close: "18:00"}}, true},
		{"bad override", Config{
			ClinicID: "c1", Timezone: "UTC",
			OperatingHours: DayHours{Open: "08:00", Close: "18:00"},
			BusinessHours:  BusinessHours{Friday: &DayHours{Open: "12:00", Close: "12:00"}},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultsFallback(t *testing.T) {
	cfg := Defaults{}.DefaultConfig("c1")
	if cfg.Timezone != "UTC" || cfg.OperatingHours.Open != "09:00" || cfg.OperatingHours.Close != "17:00" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewStore(client, Defaults{Hours: DayHours{Open: "08:00", Close: "18:00"}, Timezone: "Europe/Berlin"})
	ctx := context.Background()

	cfg, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.OperatingHours.Open != "08:00" || cfg.Timezone != "Europe/Berlin" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}

	cfg.OperatingHours = DayHours{Open: "07:30", Close: "15:00"}
	cfg.BusinessHours.Sunday = &DayHours{Open: "10:00", Close: "12:00"}
	if err := store.Set(ctx, cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("clinic:config:c1") {
		t.Fatal("expected config key in redis")
	}

	got, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OperatingHours.Open != "07:30" || got.BusinessHours.Sunday == nil || got.BusinessHours.Sunday.Close != "12:00" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestRedisStoreCorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	if err := mr.Set("clinic:config:c1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := NewStore(client, DefaultDefaults).Get(context.Background(), "c1"); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestMemoryStoreCopies(t *testing.T) {
	store := NewMemoryStore(DefaultDefaults)
	ctx := context.Background()
	cfg := DefaultDefaults.DefaultConfig("c1")
	cfg.BusinessHours.Monday = &DayHours{Open: "10:00", Close: "11:00"}
	if err := store.Set(ctx, cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}
	cfg.BusinessHours.Monday.Open = "06:00"

	got, _ := store.Get(ctx, "c1")
	if got.BusinessHours.Monday.Open != "10:00" {
		t.Fatalf("stored config aliased caller memory: %+v", got.BusinessHours.Monday)
	}
}

func TestHoursResolver(t *testing.T) {
	store := NewMemoryStore(Defaults{Hours: DayHours{Open: "08:00", Close: "18:00"}, Timezone: "UTC"})
	resolver := NewHoursResolver(store)

	start, end, err := resolver.DayWindow(context.Background(), "c1", time.Date(2030, 3, 4, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DayWindow: %v", err)
	}
	if start.Hour() != 8 || end.Hour() != 18 {
		t.Fatalf("unexpected window %s-%s", start, end)
	}
}
