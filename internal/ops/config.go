package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/yanun0323/decimal"

	"omes/internal/executor"
	"omes/internal/omes"
	"omes/internal/schema"
	"omes/internal/store"
)

// FileConfig mirrors the JSON config layout. Monetary fields are written in
// human denomination and converted to scaled integers at load time.
type FileConfig struct {
	PurchasingPower decimal.Decimal    `json:"purchasingPower"`
	PriceScale      int                `json:"priceScale"`
	Instruments     []InstrumentConfig `json:"instruments"`
	Throttles       []ThrottleConfig   `json:"throttles"`
	Underlying      ThrottleConfig     `json:"underlyingThrottle"`
	Dispatch        DispatchConfig     `json:"dispatch"`
	RequestTTLMs    int                `json:"requestTtlMs"`
	Postgres        PostgresConfig     `json:"postgres"`
	Profile         ProfileConfig      `json:"profile"`
}

// InstrumentConfig describes one tradable instrument entry.
type InstrumentConfig struct {
	Symbol          string `json:"symbol"`
	SymbolID        uint32 `json:"symbolId"`
	UnderlyingID    uint32 `json:"underlyingId"`
	InitialPosition int64  `json:"initialPosition"`
}

// ThrottleConfig describes one sliding-window budget.
type ThrottleConfig struct {
	NumThrottles int `json:"numThrottles"`
	WindowMs     int `json:"windowMs"`
}

// DispatchConfig sizes the request dispatcher.
type DispatchConfig struct {
	QueueCapacity int `json:"queueCapacity"`
	MaxBatchSize  int `json:"maxBatchSize"`
}

// PostgresConfig describes the snapshot database entry.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// ProfileConfig describes the continuous profiler entry.
type ProfileConfig struct {
	ServerAddress   string `json:"serverAddress"`
	ApplicationName string `json:"applicationName"`
}

// envOverrides are deployment knobs that win over the file.
type envOverrides struct {
	PostgresDSN      string `env:"OMES_POSTGRES_DSN"`
	PostgresPassword string `env:"OMES_POSTGRES_PASSWORD"`
	ProfileAddr      string `env:"OMES_PYROSCOPE_ADDR"`
	QueueCapacity    int    `env:"OMES_QUEUE_CAPACITY"`
}

// Loaded is the resolved configuration ready for wiring.
type Loaded struct {
	Service  omes.Config
	Dispatch executor.Config
	Postgres store.PostgresConfig
	Profile  ProfileConfig
}

// Load reads a JSON config file, applies environment overrides and resolves
// scaled values.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return Loaded{}, err
	}

	return resolve(cfg, overrides)
}

func resolve(cfg FileConfig, overrides envOverrides) (Loaded, error) {
	if cfg.PriceScale < 0 || cfg.PriceScale > 12 {
		return Loaded{}, fmt.Errorf("priceScale out of range: %d", cfg.PriceScale)
	}
	if len(cfg.Instruments) == 0 {
		return Loaded{}, fmt.Errorf("no instruments configured")
	}

	power, err := scaledInt(cfg.PurchasingPower, cfg.PriceScale)
	if err != nil {
		return Loaded{}, fmt.Errorf("invalid purchasingPower: %w", err)
	}
	if power <= 0 {
		return Loaded{}, fmt.Errorf("purchasingPower must be > 0")
	}

	svc := omes.Config{
		PurchasingPower: schema.Notional(power),
		UnderlyingThrottle: omes.ThrottleConfig{
			NumThrottles: cfg.Underlying.NumThrottles,
			Window:       time.Duration(cfg.Underlying.WindowMs) * time.Millisecond,
		},
		DefaultRequestTTL: time.Duration(cfg.RequestTTLMs) * time.Millisecond,
	}
	seen := make(map[uint32]string, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		if inst.Symbol == "" {
			return Loaded{}, fmt.Errorf("instrument with empty symbol")
		}
		if prev, dup := seen[inst.SymbolID]; dup {
			return Loaded{}, fmt.Errorf("symbolId %d used by both %s and %s", inst.SymbolID, prev, inst.Symbol)
		}
		seen[inst.SymbolID] = inst.Symbol
		if inst.InitialPosition < 0 {
			return Loaded{}, fmt.Errorf("negative initial position for %s", inst.Symbol)
		}
		svc.Instruments = append(svc.Instruments, omes.InstrumentConfig{
			SymbolID:        inst.SymbolID,
			UnderlyingID:    inst.UnderlyingID,
			InitialPosition: schema.Quantity(inst.InitialPosition),
		})
	}

	dispatch := executor.Config{
		QueueCapacity: cfg.Dispatch.QueueCapacity,
		MaxBatchSize:  cfg.Dispatch.MaxBatchSize,
	}
	if overrides.QueueCapacity > 0 {
		dispatch.QueueCapacity = overrides.QueueCapacity
	}
	if dispatch.QueueCapacity <= 0 {
		dispatch.QueueCapacity = 1024
	}
	if len(cfg.Throttles) == 0 {
		return Loaded{}, fmt.Errorf("no dispatch throttles configured")
	}
	for i, tc := range cfg.Throttles {
		if tc.NumThrottles <= 0 || tc.WindowMs <= 0 {
			return Loaded{}, fmt.Errorf("throttle %d must have positive budget and window", i)
		}
		dispatch.Throttles = append(dispatch.Throttles, executor.ThrottleConfig{
			NumThrottles: tc.NumThrottles,
			Window:       time.Duration(tc.WindowMs) * time.Millisecond,
		})
	}

	pg := store.PostgresConfig{
		Host:       cfg.Postgres.Host,
		Port:       cfg.Postgres.Port,
		User:       cfg.Postgres.User,
		Password:   cfg.Postgres.Password,
		Database:   cfg.Postgres.Database,
		SSLMode:    cfg.Postgres.SSLMode,
		ConnString: overrides.PostgresDSN,
	}
	if overrides.PostgresPassword != "" {
		pg.Password = overrides.PostgresPassword
	}

	profile := cfg.Profile
	if overrides.ProfileAddr != "" {
		profile.ServerAddress = overrides.ProfileAddr
	}
	if profile.ApplicationName == "" {
		profile.ApplicationName = "omes"
	}

	return Loaded{
		Service:  svc,
		Dispatch: dispatch,
		Postgres: pg,
		Profile:  profile,
	}, nil
}

// scaledInt converts a decimal amount to an integer scaled by 10^digits,
// truncating excess fractional digits.
func scaledInt(d decimal.Decimal, digits int) (int64, error) {
	s := strings.TrimSpace(d.String())
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}
	whole, frac := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		whole, frac = s[:dot], s[dot+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > digits {
		frac = frac[:digits]
	}
	for len(frac) < digits {
		frac += "0"
	}
	v, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, err
	}
	if neg {
		v = -v
	}
	return v, nil
}
