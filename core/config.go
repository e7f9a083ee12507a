package core

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	GestureConfig struct {
		ChargeDelay      time.Duration            `mapstructure:"chargeDelay"`
		PreloadDelay     time.Duration            `mapstructure:"preloadDelay"`
		CommitDelay      time.Duration            `mapstructure:"commitDelay"`
		CommitDelays     map[string]time.Duration `mapstructure:"commitDelays"` // per Target.Kind
		ReleaseDuration  time.Duration            `mapstructure:"releaseDuration"`
		ProgressInterval time.Duration            `mapstructure:"progressInterval"`
		MoveThreshold    float64                  `mapstructure:"moveThreshold"` // px
	}

	PrefetchConfig struct {
		TTL           time.Duration `mapstructure:"ttl"`
		FailedTTL     time.Duration `mapstructure:"failedTTL"`
		LoadTimeout   time.Duration `mapstructure:"loadTimeout"`
		RetryAttempts uint          `mapstructure:"retryAttempts"`
		RetryInterval time.Duration `mapstructure:"retryInterval"`
	}

	DebounceConfig struct {
		Delay           time.Duration `mapstructure:"delay"`
		TickInterval    time.Duration `mapstructure:"tickInterval"`
		SubmitTimeout   time.Duration `mapstructure:"submitTimeout"`
		MinContentRunes int           `mapstructure:"minContentRunes"`
		Placeholders    []string      `mapstructure:"placeholders"`
	}

	NotifyConfig struct {
		IdleDelay    time.Duration `mapstructure:"idleDelay"`
		OnCompletion bool          `mapstructure:"onCompletion"`
		Timeout      time.Duration `mapstructure:"timeout"`
		Backend      string        `mapstructure:"backend"` // console | line | email
		EmailTo      []string      `mapstructure:"emailTo"`
	}

	ServerConfig struct {
		Host               string        `mapstructure:"host"`
		Port               int           `mapstructure:"port"`
		JWTExpirationDelta time.Duration `mapstructure:"jwtExpirationDelta"`
		ShutdownTimeout    time.Duration `mapstructure:"shutdownTimeout"`
		FeedSize           int           `mapstructure:"feedSize"`
		DebugHost          string        `mapstructure:"debugHost"` // pprof & expvar; empty disables it
	}

	DatabaseConfig struct {
		Engine        string `mapstructure:"engine"` // empty keeps the journal in memory
		Host          string `mapstructure:"host"`
		Port          int    `mapstructure:"port"`
		Name          string `mapstructure:"name"`
		User          string `mapstructure:"user"`
		Password      string `mapstructure:"password"`
		AdminUser     string `mapstructure:"adminUser"`
		AdminPassword string `mapstructure:"adminPassword"`
		DisableTLS    bool   `mapstructure:"disableTLS"`
	}

	RedisConfig struct {
		URL string        `mapstructure:"url"` // empty disables the roster cache
		TTL time.Duration `mapstructure:"ttl"`
	}

	SheetsConfig struct {
		RosterURL   string        `mapstructure:"rosterURL"`
		ReportURL   string        `mapstructure:"reportURL"`
		AttendURL   string        `mapstructure:"attendURL"`
		Timeout     time.Duration `mapstructure:"timeout"`
		RecordPause time.Duration `mapstructure:"recordPause"`
	}

	LineConfig struct {
		PushURL     string `mapstructure:"pushURL"`
		AccessToken string `mapstructure:"accessToken"`
		To          string `mapstructure:"to"`
	}

	SendgridConfig struct {
		APIKey    string `mapstructure:"apiKey"`
		FromEmail string `mapstructure:"fromEmail"`
	}

	RollbarConfig struct {
		Token string `mapstructure:"token"`
	}

	Config struct {
		Env       string `mapstructure:"env"`
		Build     string `mapstructure:"build"`
		Debug     bool   `mapstructure:"debug"`
		TestMode  bool   `mapstructure:"testMode"`
		AppName   string `mapstructure:"appName"`
		SecretKey string `mapstructure:"secretKey"`

		Gesture  GestureConfig  `mapstructure:"gesture"`
		Prefetch PrefetchConfig `mapstructure:"prefetch"`
		Debounce DebounceConfig `mapstructure:"debounce"`
		Notify   NotifyConfig   `mapstructure:"notify"`
		Server   ServerConfig   `mapstructure:"server"`
		Database DatabaseConfig `mapstructure:"database"`
		Redis    RedisConfig    `mapstructure:"redis"`
		Sheets   SheetsConfig   `mapstructure:"sheets"`
		Line     LineConfig     `mapstructure:"line"`
		Sendgrid SendgridConfig `mapstructure:"sendgrid"`
		Rollbar  RollbarConfig  `mapstructure:"rollbar"`
	}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Presence")
	v.SetDefault("secretKey", "k2v-9r+m0xq$8t4w!ze7j(bn)1c#yf5&u3hd^l6sag@po")

	v.SetDefault("gesture.chargeDelay", 500*time.Millisecond)
	v.SetDefault("gesture.preloadDelay", time.Second)
	v.SetDefault("gesture.commitDelay", 1500*time.Millisecond)
	v.SetDefault("gesture.commitDelays", map[string]time.Duration{"special": 2 * time.Second})
	v.SetDefault("gesture.releaseDuration", 300*time.Millisecond)
	v.SetDefault("gesture.progressInterval", 50*time.Millisecond)
	v.SetDefault("gesture.moveThreshold", 15.0)

	v.SetDefault("prefetch.ttl", time.Minute)
	v.SetDefault("prefetch.failedTTL", 5*time.Second)
	v.SetDefault("prefetch.loadTimeout", 15*time.Second)
	v.SetDefault("prefetch.retryAttempts", 3)
	v.SetDefault("prefetch.retryInterval", 500*time.Millisecond)

	v.SetDefault("debounce.delay", 3*time.Second)
	v.SetDefault("debounce.tickInterval", time.Second)
	v.SetDefault("debounce.submitTimeout", 15*time.Second)
	v.SetDefault("debounce.minContentRunes", 1)
	v.SetDefault("debounce.placeholders", []string{"請輸入課程內容", "請輸入課程內容..."})

	v.SetDefault("notify.idleDelay", 3*time.Second)
	v.SetDefault("notify.onCompletion", true)
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("notify.backend", "console")
	v.SetDefault("notify.emailTo", []string{})

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.feedSize", 512)
	v.SetDefault("server.debugHost", "")

	v.SetDefault("database.engine", "") // postgres
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "presence")
	v.SetDefault("database.user", "presence")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", 5*time.Minute)

	v.SetDefault("sheets.rosterURL", "")
	v.SetDefault("sheets.reportURL", "")
	v.SetDefault("sheets.attendURL", "")
	v.SetDefault("sheets.timeout", 10*time.Second)
	v.SetDefault("sheets.recordPause", 100*time.Millisecond)

	v.SetDefault("line.pushURL", "https://api.line.me/v2/bot/message/push")
	v.SetDefault("line.accessToken", "")
	v.SetDefault("line.to", "")

	v.SetDefault("sendgrid.apiKey", "")
	v.SetDefault("sendgrid.fromEmail", "noreply@localhost")

	v.SetDefault("rollbar.token", "")
}

// LoadConfig reads the configuration for the current ENV (DEV by default).
// Values come from, in increasing priority: defaults, `<dir>/presence.yaml`,
// `<dir>/.env.<env>` and the environment (prefixed by the ENV name, e.g. PROD_SERVER_PORT).
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "PROD":
		v.SetDefault("debug", false)
	}
	v.Set("env", env)

	if dir != "" {
		cfgPath := filepath.Join(dir, "presence.yaml")
		if _, err := os.Stat(cfgPath); err == nil {
			v.SetConfigFile(cfgPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.Wrapf(err, "reading %s", cfgPath)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "stat %s", cfgPath)
		}

		// load .env if it exists (ignore if it does not)
		dotEnvPath := filepath.Join(dir, ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "stat %s", dotEnvPath)
		}
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	conf.Env = env
	return conf, nil
}

// CommitDelayFor returns the press duration needed to open a Target of the given kind.
func (c GestureConfig) CommitDelayFor(kind string) time.Duration {
	if d, ok := c.CommitDelays[CleanString(kind, true /* lower */)]; ok && d > 0 {
		return d
	}
	return c.CommitDelay
}

func (c DebounceConfig) ContentRules() ContentRules {
	return ContentRules{MinRunes: c.MinContentRunes, Placeholders: c.Placeholders}
}

func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
