package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tradedesk/internal/broker"
	"tradedesk/internal/journal"
	"tradedesk/internal/market"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	ProviderTechnical = "technical"
	ProviderLLM       = "llm"

	BrokerPaper  = "paper"
	BrokerAlpaca = "alpaca"
)

type Instrument struct {
	Symbol       string  `yaml:"symbol"`
	Name         string  `yaml:"name"`
	Volatility   float64 `yaml:"volatility"`
	InitialPrice float64 `yaml:"initial_price"`
	Class        string  `yaml:"class"`
	BrokerSymbol string  `yaml:"broker_symbol,omitempty"`
}

type Config struct {
	Session struct {
		StartingCash  float64 `yaml:"starting_cash"`
		Sentiment     float64 `yaml:"sentiment"`
		HistoryLength int     `yaml:"history_length"`
		NeutralK      float64 `yaml:"neutral_k"`
		MinPrice      float64 `yaml:"min_price"`

		// Seed fixes the price walk; zero seeds from the clock.
		Seed int64 `yaml:"seed"`
	} `yaml:"session"`
	Instruments []Instrument `yaml:"instruments"`
	Intervals   struct {
		Tick      time.Duration `yaml:"tick"`
		Valuation time.Duration `yaml:"valuation"`
		Analysis  time.Duration `yaml:"analysis"`
	} `yaml:"intervals"`
	Risk struct {
		Threshold    float64 `yaml:"threshold"`
		ProfitTarget float64 `yaml:"profit_target"`
		CryptoSize   float64 `yaml:"crypto_size"`
		CommodityLot float64 `yaml:"commodity_lot"`
	} `yaml:"risk"`
	Surveillance struct {
		Lookback          int      `yaml:"lookback"`
		SourceCap         int      `yaml:"source_cap"`
		IntelligenceStart float64  `yaml:"intelligence_start"`
		IntelligenceStep  float64  `yaml:"intelligence_step"`
		Skills            []string `yaml:"skills"`
		StartMonitoring   bool     `yaml:"start_monitoring"`
	} `yaml:"surveillance"`
	Analysis struct {
		Provider       string        `yaml:"provider"`
		Timeout        time.Duration `yaml:"timeout"`
		Temperature    float64       `yaml:"temperature"`
		Context        string        `yaml:"context"`
		SystemPrompt   string        `yaml:"system_prompt"`
		AnalysisPrompt string        `yaml:"analysis_prompt"`
		BriefingPrompt string        `yaml:"briefing_prompt"`
	} `yaml:"analysis"`
	LLM struct {
		BaseURL string        `yaml:"base_url"`
		Model   string        `yaml:"model"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"llm"`
	Broker struct {
		Kind        string        `yaml:"kind"`
		Environment string        `yaml:"environment"`
		BaseURL     string        `yaml:"base_url"`
		Timeout     time.Duration `yaml:"timeout"`
		Username    string        `yaml:"username"`
		AccountID   string        `yaml:"account_id"`
		AutoConnect bool          `yaml:"auto_connect"`
		Live        bool          `yaml:"live"`
		APIKey      string        `yaml:"-"`
		APISecret   string        `yaml:"-"`
	} `yaml:"broker"`
	Journal struct {
		Kind string `yaml:"kind"`
		Path string `yaml:"path"`
	} `yaml:"journal"`
	State struct {
		Path string `yaml:"path"`
	} `yaml:"state"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Report struct {
		Dir string `yaml:"dir"`
	} `yaml:"report"`
}

// Default returns the reference session: six instruments, a 3s tick and a
// 15s analysis sweep.
func Default() Config {
	var cfg Config
	cfg.Session.StartingCash = 100000
	cfg.Session.Sentiment = 50
	cfg.Session.HistoryLength = 50
	cfg.Session.NeutralK = 1500
	cfg.Session.MinPrice = 0.01
	cfg.Instruments = []Instrument{
		{Symbol: "BTC", Name: "Bitcoin", Volatility: 0.04, InitialPrice: 65420, Class: string(market.ClassCrypto), BrokerSymbol: "BTC/USD"},
		{Symbol: "ETH", Name: "Ethereum", Volatility: 0.05, InitialPrice: 3450.50, Class: string(market.ClassCrypto), BrokerSymbol: "ETH/USD"},
		{Symbol: "NATGAS", Name: "Natural Gas", Volatility: 0.035, InitialPrice: 2.15, Class: string(market.ClassCommodity), BrokerSymbol: "UNG"},
		{Symbol: "SOL", Name: "Solana", Volatility: 0.08, InitialPrice: 145.20, Class: string(market.ClassCrypto), BrokerSymbol: "SOL/USD"},
		{Symbol: "LINK", Name: "Chainlink", Volatility: 0.06, InitialPrice: 18.40, Class: string(market.ClassCrypto), BrokerSymbol: "LINK/USD"},
		{Symbol: "ADA", Name: "Cardano", Volatility: 0.07, InitialPrice: 0.45, Class: string(market.ClassCrypto), BrokerSymbol: "ADA/USD"},
	}
	cfg.Intervals.Tick = 3 * time.Second
	cfg.Intervals.Valuation = time.Second
	cfg.Intervals.Analysis = 15 * time.Second
	cfg.Risk.Threshold = 0.82
	cfg.Risk.ProfitTarget = 250
	cfg.Risk.CryptoSize = 0.05
	cfg.Risk.CommodityLot = 100
	cfg.Surveillance.Lookback = 5
	cfg.Surveillance.SourceCap = 10
	cfg.Surveillance.IntelligenceStart = 95.2
	cfg.Surveillance.IntelligenceStep = 0.02
	cfg.Surveillance.Skills = []string{"Crypto Volatility Analysis", "Energy Market Fundamentals", "Sentiment Synthesis"}
	cfg.Analysis.Provider = ProviderTechnical
	cfg.Analysis.Timeout = 20 * time.Second
	cfg.Analysis.Temperature = 0.2
	cfg.LLM.BaseURL = "http://localhost:11434"
	cfg.LLM.Model = "llama3.1"
	cfg.LLM.Timeout = 30 * time.Second
	cfg.Broker.Kind = BrokerPaper
	cfg.Broker.Environment = string(broker.Demo)
	cfg.Broker.Timeout = 10 * time.Second
	cfg.Broker.Username = "desk"
	cfg.Journal.Kind = string(journal.KindNDJSON)
	cfg.Journal.Path = "decisions.ndjson"
	cfg.State.Path = "desk_state.json"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Report.Dir = "reports"
	return cfg
}

// Load layers defaults, the YAML file at path, the .env file at envFile and
// the process environment, in that order. A missing file at either path is
// skipped.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if envFile != "" {
		if err := loadDotEnvIfPresent(envFile); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Broker.APISecret = v
	}
	if v := os.Getenv("DESK_BROKER_USERNAME"); v != "" {
		cfg.Broker.Username = v
	}
	if v := os.Getenv("DESK_BROKER_ACCOUNT_ID"); v != "" {
		cfg.Broker.AccountID = v
	}
	if v := os.Getenv("DESK_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("DESK_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("DESK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DESK_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
}

func (c Config) MarketInstruments() ([]market.Instrument, error) {
	out := make([]market.Instrument, 0, len(c.Instruments))
	for _, in := range c.Instruments {
		class, err := market.ParseAssetClass(in.Class)
		if err != nil {
			return nil, fmt.Errorf("%w: instrument %s: %v", ErrInvalid, in.Symbol, err)
		}
		out = append(out, market.Instrument{
			Symbol:       in.Symbol,
			Name:         in.Name,
			Volatility:   in.Volatility,
			InitialPrice: in.InitialPrice,
			Class:        class,
			BrokerSymbol: in.BrokerSymbol,
		})
	}
	return out, nil
}

func (c Config) LotSizes() market.LotSizes {
	return market.LotSizes{Crypto: c.Risk.CryptoSize, Commodity: c.Risk.CommodityLot}
}

// Credentials maps the broker section onto a session login. The API secret
// travels as the password.
func (c Config) Credentials() broker.Credentials {
	env, _ := broker.ParseEnvironment(c.Broker.Environment)
	return broker.Credentials{
		APIKey:      c.Broker.APIKey,
		Username:    c.Broker.Username,
		Password:    c.Broker.APISecret,
		Environment: env,
		AccountID:   c.Broker.AccountID,
	}
}

func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c Config) Validate() error {
	return validate(c)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func validate(cfg Config) error {
	if len(cfg.Instruments) == 0 {
		return invalid("at least one instrument is required")
	}
	seen := make(map[string]struct{}, len(cfg.Instruments))
	for _, in := range cfg.Instruments {
		if in.Symbol == "" {
			return invalid("instrument symbol is required")
		}
		if _, ok := seen[in.Symbol]; ok {
			return invalid("duplicate instrument %s", in.Symbol)
		}
		seen[in.Symbol] = struct{}{}
		if in.Volatility <= 0 {
			return invalid("instrument %s: volatility must be > 0", in.Symbol)
		}
		if in.InitialPrice <= 0 {
			return invalid("instrument %s: initial_price must be > 0", in.Symbol)
		}
		if _, err := market.ParseAssetClass(in.Class); err != nil {
			return invalid("instrument %s: %v", in.Symbol, err)
		}
	}

	if cfg.Intervals.Tick <= 0 || cfg.Intervals.Valuation <= 0 || cfg.Intervals.Analysis <= 0 {
		return invalid("intervals must be > 0")
	}
	if cfg.Risk.Threshold < 0 || cfg.Risk.Threshold >= 1 {
		return invalid("risk.threshold must be in [0,1)")
	}
	if cfg.Risk.ProfitTarget <= 0 {
		return invalid("risk.profit_target must be > 0")
	}
	if cfg.Risk.CryptoSize <= 0 || cfg.Risk.CommodityLot <= 0 {
		return invalid("risk.crypto_size and risk.commodity_lot must be > 0")
	}
	if cfg.Surveillance.Lookback <= 0 {
		return invalid("surveillance.lookback must be > 0")
	}
	if cfg.Session.HistoryLength < cfg.Surveillance.Lookback {
		return invalid("session.history_length must be >= surveillance.lookback")
	}
	if cfg.Session.StartingCash < 0 {
		return invalid("session.starting_cash must be >= 0")
	}
	if cfg.Session.Sentiment < 0 || cfg.Session.Sentiment > 100 {
		return invalid("session.sentiment must be in [0,100]")
	}
	if cfg.Session.NeutralK <= 0 || cfg.Session.MinPrice <= 0 {
		return invalid("session.neutral_k and session.min_price must be > 0")
	}

	switch cfg.Analysis.Provider {
	case ProviderTechnical:
	case ProviderLLM:
		if cfg.LLM.BaseURL == "" || cfg.LLM.Model == "" {
			return invalid("llm.base_url and llm.model are required for the llm provider")
		}
	default:
		return invalid("unknown analysis.provider %q", cfg.Analysis.Provider)
	}

	if _, err := broker.ParseEnvironment(cfg.Broker.Environment); err != nil {
		return invalid("%v", err)
	}
	switch cfg.Broker.Kind {
	case BrokerPaper, BrokerAlpaca:
	default:
		return invalid("unknown broker.kind %q", cfg.Broker.Kind)
	}
	if cfg.Broker.Live && cfg.Broker.Kind == BrokerAlpaca && (cfg.Broker.APIKey == "" || cfg.Broker.APISecret == "") {
		return invalid("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required for live alpaca trading")
	}

	switch journal.Kind(cfg.Journal.Kind) {
	case journal.KindNone:
	case journal.KindNDJSON, journal.KindSQLite:
		if cfg.Journal.Path == "" {
			return invalid("journal.path is required for %s", cfg.Journal.Kind)
		}
	default:
		return invalid("unknown journal.kind %q", cfg.Journal.Kind)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return invalid("log.level: %v", err)
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return invalid("log.format must be text or json")
	}
	return nil
}
