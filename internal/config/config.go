package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Wyydra/yajanus/internal/core/domain"
)

type Gateway struct {
	WebSocketURL string
	HTTPURL      string
	ProxyURL     string
	APISecret    string
}

type Connection struct {
	Modes              []domain.TransportMode
	KeepaliveInterval  time.Duration
	PollRetryDelay     time.Duration
	PollMaxRetries     int
	TransactionTimeout time.Duration
	RequestTimeout     time.Duration
	DialTimeout        time.Duration
}

type Proxy struct {
	Listen            string
	Upstream          string
	WebSocketUpstream string
	AllowedOrigins    []string
}

type Call struct {
	Plugin string
}

type Config struct {
	Gateway    Gateway
	Connection Connection
	Proxy      Proxy
	Call       Call
	LogLevel   string
}

func Default() Config {
	return Config{
		Gateway: Gateway{
			WebSocketURL: "ws://127.0.0.1:8188",
			HTTPURL:      "http://127.0.0.1:8088/janus",
			ProxyURL:     "http://127.0.0.1:8080/janus",
		},
		Connection: Connection{
			Modes:              append([]domain.TransportMode(nil), domain.DefaultModeOrder...),
			KeepaliveInterval:  25 * time.Second,
			PollRetryDelay:     5 * time.Second,
			PollMaxRetries:     0,
			TransactionTimeout: 30 * time.Second,
			RequestTimeout:     60 * time.Second,
			DialTimeout:        10 * time.Second,
		},
		Proxy: Proxy{
			Listen:   ":8080",
			Upstream: "http://127.0.0.1:8088/janus",
		},
		Call: Call{
			Plugin: "janus.plugin.echotest",
		},
		LogLevel: "info",
	}
}

type fileConfig struct {
	Gateway struct {
		WebSocketURL string `toml:"websocket_url"`
		HTTPURL      string `toml:"http_url"`
		ProxyURL     string `toml:"proxy_url"`
		APISecret    string `toml:"api_secret"`
	} `toml:"gateway"`
	Connection struct {
		Modes              []string `toml:"modes"`
		KeepaliveInterval  string   `toml:"keepalive_interval"`
		PollRetryDelay     string   `toml:"poll_retry_delay"`
		PollMaxRetries     int      `toml:"poll_max_retries"`
		TransactionTimeout string   `toml:"transaction_timeout"`
		RequestTimeout     string   `toml:"request_timeout"`
		DialTimeout        string   `toml:"dial_timeout"`
	} `toml:"connection"`
	Proxy struct {
		Listen            string `toml:"listen"`
		Upstream          string `toml:"upstream"`
		WebSocketUpstream string   `toml:"websocket_upstream"`
		AllowedOrigins    []string `toml:"allowed_origins"`
	} `toml:"proxy"`
	Call struct {
		Plugin string `toml:"plugin"`
	} `toml:"call"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// Load reads a TOML file and applies the keys it defines over Default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	str := func(dst *string, src string, key ...string) {
		if !meta.IsDefined(key...) {
			return
		}
		if v := strings.TrimSpace(src); v != "" {
			*dst = v
		}
	}
	str(&cfg.Gateway.WebSocketURL, raw.Gateway.WebSocketURL, "gateway", "websocket_url")
	str(&cfg.Gateway.HTTPURL, raw.Gateway.HTTPURL, "gateway", "http_url")
	str(&cfg.Gateway.ProxyURL, raw.Gateway.ProxyURL, "gateway", "proxy_url")
	if meta.IsDefined("gateway", "api_secret") {
		cfg.Gateway.APISecret = raw.Gateway.APISecret
	}
	str(&cfg.Proxy.Listen, raw.Proxy.Listen, "proxy", "listen")
	str(&cfg.Proxy.Upstream, raw.Proxy.Upstream, "proxy", "upstream")
	str(&cfg.Proxy.WebSocketUpstream, raw.Proxy.WebSocketUpstream, "proxy", "websocket_upstream")
	if meta.IsDefined("proxy", "allowed_origins") {
		cfg.Proxy.AllowedOrigins = nil
		for _, o := range raw.Proxy.AllowedOrigins {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Proxy.AllowedOrigins = append(cfg.Proxy.AllowedOrigins, o)
			}
		}
	}
	str(&cfg.Call.Plugin, raw.Call.Plugin, "call", "plugin")
	str(&cfg.LogLevel, raw.Log.Level, "log", "level")

	if meta.IsDefined("connection", "modes") {
		modes, err := ParseModes(raw.Connection.Modes)
		if err != nil {
			return Config{}, err
		}
		cfg.Connection.Modes = modes
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"keepalive_interval", raw.Connection.KeepaliveInterval, &cfg.Connection.KeepaliveInterval},
		{"poll_retry_delay", raw.Connection.PollRetryDelay, &cfg.Connection.PollRetryDelay},
		{"transaction_timeout", raw.Connection.TransactionTimeout, &cfg.Connection.TransactionTimeout},
		{"request_timeout", raw.Connection.RequestTimeout, &cfg.Connection.RequestTimeout},
		{"dial_timeout", raw.Connection.DialTimeout, &cfg.Connection.DialTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined("connection", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("connection", "poll_max_retries") {
		cfg.Connection.PollMaxRetries = raw.Connection.PollMaxRetries
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseModes accepts mode names and their aliases, e.g. "ws" or "proxy".
func ParseModes(in []string) ([]domain.TransportMode, error) {
	out := make([]domain.TransportMode, 0, len(in))
	seen := make(map[domain.TransportMode]bool)
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		m, err := domain.ParseTransportMode(s)
		if err != nil {
			return nil, err
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out, nil
}

func (c Config) Validate() error {
	var errs []error
	if len(c.Connection.Modes) == 0 {
		errs = append(errs, errors.New("connection.modes: at least one transport is required"))
	}
	for _, m := range c.Connection.Modes {
		if c.URLFor(m) == "" {
			errs = append(errs, fmt.Errorf("gateway: no url configured for %s transport", m))
		}
	}
	if c.Connection.KeepaliveInterval < 0 {
		errs = append(errs, errors.New("connection.keepalive_interval: must not be negative"))
	}
	if c.Connection.PollRetryDelay <= 0 {
		errs = append(errs, errors.New("connection.poll_retry_delay: must be positive"))
	}
	if c.Connection.PollMaxRetries < 0 {
		errs = append(errs, errors.New("connection.poll_max_retries: must not be negative"))
	}
	if c.Connection.TransactionTimeout < 0 {
		errs = append(errs, errors.New("connection.transaction_timeout: must not be negative"))
	}
	return errors.Join(errs...)
}

// URLFor returns the endpoint a transport mode talks to.
func (c Config) URLFor(m domain.TransportMode) string {
	switch m {
	case domain.ModePersistent:
		return c.Gateway.WebSocketURL
	case domain.ModeDirectPoll:
		return c.Gateway.HTTPURL
	case domain.ModeProxiedPoll:
		return c.Gateway.ProxyURL
	}
	return ""
}
