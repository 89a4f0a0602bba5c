package policy

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Policy holds the lending rules: loan period, member loan cap and the
// grace-period fee schedule. It is built once at startup and passed in;
// nothing in the engine mutates it.
type Policy struct {
	LoanPeriodDays      int     `toml:"loan_period_days"`
	MaxActiveLoans      int     `toml:"max_active_loans"`
	GracePeriodDays     int     `toml:"grace_period_days"`
	BaseLateFee         float64 `toml:"base_late_fee"`
	DailyLateFee        float64 `toml:"daily_late_fee"`
	MaxLateFee          float64 `toml:"max_late_fee"`
	NotificationOffsets []int   `toml:"notification_offsets"`
	AutoSuspendDays     int     `toml:"auto_suspend_days"`
}

func Default() Policy {
	return Policy{
		LoanPeriodDays:      14,
		MaxActiveLoans:      3,
		GracePeriodDays:     3,
		BaseLateFee:         1.0,
		DailyLateFee:        0.5,
		MaxLateFee:          25.0,
		NotificationOffsets: []int{1, 3, 7, 14},
		AutoSuspendDays:     30,
	}
}

// LoadFile overlays a TOML policy file on the defaults. Keys absent from
// the file keep their default values.
func LoadFile(path string) (Policy, error) {
	p := Default()
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return Policy{}, fmt.Errorf("failed to load policy file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// FromEnv builds the policy from defaults, then the POLICY_FILE TOML file
// if set, then individual env var overrides.
func FromEnv() (Policy, error) {
	p := Default()
	if path := os.Getenv("POLICY_FILE"); path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return Policy{}, err
		}
		p = loaded
	}
	p.LoanPeriodDays = getEnvInt("LOAN_PERIOD_DAYS", p.LoanPeriodDays)
	p.MaxActiveLoans = getEnvInt("MAX_ACTIVE_LOANS", p.MaxActiveLoans)
	p.GracePeriodDays = getEnvInt("GRACE_PERIOD_DAYS", p.GracePeriodDays)
	p.BaseLateFee = getEnvFloat("BASE_LATE_FEE", p.BaseLateFee)
	p.DailyLateFee = getEnvFloat("DAILY_LATE_FEE", p.DailyLateFee)
	p.MaxLateFee = getEnvFloat("MAX_LATE_FEE", p.MaxLateFee)
	p.AutoSuspendDays = getEnvInt("AUTO_SUSPEND_DAYS", p.AutoSuspendDays)
	if offsets := os.Getenv("NOTIFICATION_OFFSETS"); offsets != "" {
		parsed, err := parseOffsets(offsets)
		if err != nil {
			return Policy{}, err
		}
		p.NotificationOffsets = parsed
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	if p.LoanPeriodDays <= 0 {
		return fmt.Errorf("loan_period_days must be positive, got %d", p.LoanPeriodDays)
	}
	if p.MaxActiveLoans <= 0 {
		return fmt.Errorf("max_active_loans must be positive, got %d", p.MaxActiveLoans)
	}
	if p.GracePeriodDays < 0 {
		return fmt.Errorf("grace_period_days must not be negative, got %d", p.GracePeriodDays)
	}
	if p.BaseLateFee < 0 || p.DailyLateFee < 0 || p.MaxLateFee < 0 {
		return fmt.Errorf("late fees must not be negative")
	}
	prev := 0
	for _, off := range p.NotificationOffsets {
		if off <= 0 {
			return fmt.Errorf("notification offsets must be positive, got %d", off)
		}
		if off <= prev {
			return fmt.Errorf("notification offsets must be strictly increasing")
		}
		prev = off
	}
	return nil
}

func parseOffsets(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	offsets := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid notification offset %q", part)
		}
		offsets = append(offsets, n)
	}
	return offsets, nil
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
