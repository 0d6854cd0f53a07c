package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

const (
	MarketPaper   = "paper"
	MarketBitget  = "bitget"
	MarketBinance = "binance"

	FeedUpbit  = "upbit"
	FeedStatic = "static"

	StorageSQLite = "sqlite"
	StorageMySQL  = "mysql"
)

// Duration is a time.Duration that unmarshals from human forms like "15m" or "1d".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := str2duration.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return str2duration.String(time.Duration(d)), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// LegConfig names one side of a market pair.
type LegConfig struct {
	Market string `yaml:"market"`
	Symbol string `yaml:"symbol"`
	Base   string `yaml:"base"`
	Quote  string `yaml:"quote"`
}

type PairConfig struct {
	First  LegConfig `yaml:"first"`
	Second LegConfig `yaml:"second"`
}

type APIConfig struct {
	BaseURL    string `yaml:"base_url"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Passphrase string `yaml:"passphrase"`
}

type RuleConfig struct {
	MinAmount decimal.Decimal `yaml:"min_amount"`
	StepSize  decimal.Decimal `yaml:"step_size"`
}

// LevelConfig is a [price, amount] book level of a static paper feed.
type LevelConfig [2]decimal.Decimal

type StaticBookConfig struct {
	Bids []LevelConfig `yaml:"bids"`
	Asks []LevelConfig `yaml:"asks"`
}

type PaperConfig struct {
	Balances map[string]decimal.Decimal `yaml:"balances"`
	Fee      decimal.Decimal            `yaml:"fee"`
	Rules    map[string]RuleConfig      `yaml:"rules"`
	Feed     string                     `yaml:"feed"`
	// Upbit maps a symbol to its Upbit code for the upbit feed.
	Upbit    map[string]string           `yaml:"upbit"`
	UpbitURL string                      `yaml:"upbit_url"`
	Books    map[string]StaticBookConfig `yaml:"books"`
	// MaxBookAge refuses feed books older than this; zero disables it.
	MaxBookAge Duration `yaml:"max_book_age"`
}

type MarketConfig struct {
	Name            string      `yaml:"name"`
	Kind            string      `yaml:"kind"`
	RefreshInterval Duration    `yaml:"refresh_interval"`
	BookDepth       int         `yaml:"book_depth"`
	Symbols         []string    `yaml:"symbols"`
	API             APIConfig   `yaml:"api"`
	Paper           PaperConfig `yaml:"paper"`
}

type StrategyConfig struct {
	MinProfitability decimal.Decimal `yaml:"min_profitability"`
	TickInterval     Duration        `yaml:"tick_interval"`
	StatusInterval   Duration        `yaml:"status_interval"`
	LogStatus        bool            `yaml:"log_status"`
	NextTradeDelay   Duration        `yaml:"next_trade_delay"`
	MaxOrderAge      Duration        `yaml:"max_order_age"`
	InboxSize        int             `yaml:"inbox_size"`
	DumpFile         string          `yaml:"dump_file"`
}

type RatesConfig struct {
	Fixed map[string]decimal.Decimal `yaml:"fixed"`
	KRW   struct {
		Enabled      bool     `yaml:"enabled"`
		URL          string   `yaml:"url"`
		PollInterval Duration `yaml:"poll_interval"`
	} `yaml:"krw"`
}

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`

	Strategy StrategyConfig `yaml:"strategy"`
	Markets  []MarketConfig `yaml:"markets"`
	Pairs    []PairConfig   `yaml:"pairs"`
	Rates    RatesConfig    `yaml:"rates"`

	Storage struct {
		Enabled bool   `yaml:"enabled"`
		Driver  string `yaml:"driver"`
		DSN     string `yaml:"dsn"`
	} `yaml:"storage"`

	Telegram struct {
		Enabled bool   `yaml:"enabled"`
		Token   string `yaml:"token"`
		ChatID  int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
}

// LoadConfig는 .env와 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := overrideWithEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv reads .env from the working directory. A missing file is fine.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Market returns the market section named name.
func (c *Config) Market(name string) (MarketConfig, bool) {
	for _, m := range c.Markets {
		if m.Name == name {
			return m, true
		}
	}
	return MarketConfig{}, false
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	var errs []error

	if len(c.Pairs) == 0 {
		errs = append(errs, errors.New("at least one pair is required"))
	}
	if c.Strategy.MinProfitability.IsNegative() {
		errs = append(errs, fmt.Errorf("min_profitability must not be negative: %s", c.Strategy.MinProfitability))
	}
	if c.Strategy.TickInterval <= 0 {
		errs = append(errs, errors.New("tick_interval must be positive"))
	}
	if c.Strategy.StatusInterval <= 0 {
		errs = append(errs, errors.New("status_interval must be positive"))
	}

	names := make(map[string]bool, len(c.Markets))
	for i, m := range c.Markets {
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("markets[%d]: name is required", i))
			continue
		}
		if names[m.Name] {
			errs = append(errs, fmt.Errorf("duplicate market name %q", m.Name))
		}
		names[m.Name] = true

		switch m.Kind {
		case MarketBitget, MarketBinance:
		case MarketPaper:
			switch m.Paper.Feed {
			case FeedStatic, FeedUpbit:
			default:
				errs = append(errs, fmt.Errorf("market %s: unknown paper feed %q", m.Name, m.Paper.Feed))
			}
		default:
			errs = append(errs, fmt.Errorf("market %s: unknown kind %q", m.Name, m.Kind))
		}
	}

	for i, p := range c.Pairs {
		for _, leg := range []LegConfig{p.First, p.Second} {
			if !names[leg.Market] {
				errs = append(errs, fmt.Errorf("pairs[%d]: unknown market %q", i, leg.Market))
				continue
			}
			if leg.Symbol == "" || leg.Base == "" || leg.Quote == "" {
				errs = append(errs, fmt.Errorf("pairs[%d]: %s leg needs symbol, base and quote", i, leg.Market))
			}
		}
	}

	if c.Storage.Enabled {
		switch c.Storage.Driver {
		case StorageSQLite, StorageMySQL:
		default:
			errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
		}
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		errs = append(errs, errors.New("telegram needs token and chat_id"))
	}

	return errors.Join(errs...)
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	for i := range cfg.Markets {
		m := &cfg.Markets[i]
		prefix := "ARB_" + strings.ToUpper(m.Kind) + "_"
		switch m.Kind {
		case MarketBitget:
			setFromEnv(&m.API.AccessKey, prefix+"KEY")
			setFromEnv(&m.API.SecretKey, prefix+"SECRET")
			setFromEnv(&m.API.Passphrase, prefix+"PASSPHRASE")
		case MarketBinance:
			setFromEnv(&m.API.AccessKey, prefix+"KEY")
			setFromEnv(&m.API.SecretKey, prefix+"SECRET")
		}
	}

	setFromEnv(&cfg.Telegram.Token, "ARB_TELEGRAM_TOKEN")
	if chat := os.Getenv("ARB_TELEGRAM_CHAT"); chat != "" {
		var id int64
		if _, err := fmt.Sscan(chat, &id); err != nil {
			return fmt.Errorf("ARB_TELEGRAM_CHAT: %w", err)
		}
		cfg.Telegram.ChatID = id
	}
	setFromEnv(&cfg.Storage.DSN, "ARB_DB_DSN")
	return nil
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
