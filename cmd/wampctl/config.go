package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kbirk/wamp/pkg/auth"
	"github.com/kbirk/wamp/pkg/client"
	"github.com/kbirk/wamp/pkg/serializer"
)

type authConfig struct {
	Method     string
	AuthID     string
	Ticket     string
	Secret     string
	PrivateKey string
}

type config struct {
	URL          string
	Realm        string
	Serializer   string
	LogLevel     string
	CloseTimeout time.Duration
	Auth         authConfig
	Reconnect    client.BackoffConfig
}

func defaultConfig() config {
	return config{
		URL:          "ws://localhost:8080/ws",
		Realm:        "realm1",
		Serializer:   "cbor",
		LogLevel:     "info",
		CloseTimeout: 5 * time.Second,
		Auth:         authConfig{Method: auth.MethodAnonymous},
		Reconnect:    client.DefaultBackoff(),
	}
}

type fileAuthConfig struct {
	Method     string `toml:"method"`
	AuthID     string `toml:"authid"`
	Ticket     string `toml:"ticket"`
	Secret     string `toml:"secret"`
	PrivateKey string `toml:"private_key"`
}

type fileReconnectConfig struct {
	InitialDelay string  `toml:"initial_delay"`
	MaxDelay     string  `toml:"max_delay"`
	Multiplier   float64 `toml:"multiplier"`
	Jitter       bool    `toml:"jitter"`
	MaxAttempts  int     `toml:"max_attempts"`
}

type fileConfig struct {
	URL          string              `toml:"url"`
	Realm        string              `toml:"realm"`
	Serializer   string              `toml:"serializer"`
	LogLevel     string              `toml:"log_level"`
	CloseTimeout string              `toml:"close_timeout"`
	Auth         fileAuthConfig      `toml:"auth"`
	Reconnect    fileReconnectConfig `toml:"reconnect"`
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load wampctl config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}

	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("realm") {
		cfg.Realm = strings.TrimSpace(raw.Realm)
	}
	if meta.IsDefined("serializer") {
		cfg.Serializer = strings.ToLower(strings.TrimSpace(raw.Serializer))
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("close_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.CloseTimeout))
		if err != nil {
			return config{}, fmt.Errorf("parse close_timeout: %w", err)
		}
		cfg.CloseTimeout = d
	}

	if meta.IsDefined("auth", "method") {
		cfg.Auth.Method = strings.ToLower(strings.TrimSpace(raw.Auth.Method))
	}
	if meta.IsDefined("auth", "authid") {
		cfg.Auth.AuthID = strings.TrimSpace(raw.Auth.AuthID)
	}
	if meta.IsDefined("auth", "ticket") {
		cfg.Auth.Ticket = raw.Auth.Ticket
	}
	if meta.IsDefined("auth", "secret") {
		cfg.Auth.Secret = raw.Auth.Secret
	}
	if meta.IsDefined("auth", "private_key") {
		cfg.Auth.PrivateKey = strings.TrimSpace(raw.Auth.PrivateKey)
	}

	if meta.IsDefined("reconnect", "initial_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Reconnect.InitialDelay))
		if err != nil {
			return config{}, fmt.Errorf("parse reconnect.initial_delay: %w", err)
		}
		cfg.Reconnect.InitialDelay = d
	}
	if meta.IsDefined("reconnect", "max_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Reconnect.MaxDelay))
		if err != nil {
			return config{}, fmt.Errorf("parse reconnect.max_delay: %w", err)
		}
		cfg.Reconnect.MaxDelay = d
	}
	if meta.IsDefined("reconnect", "multiplier") {
		cfg.Reconnect.Multiplier = raw.Reconnect.Multiplier
	}
	if meta.IsDefined("reconnect", "jitter") {
		cfg.Reconnect.Jitter = raw.Reconnect.Jitter
	}
	if meta.IsDefined("reconnect", "max_attempts") {
		cfg.Reconnect.MaxAttempts = raw.Reconnect.MaxAttempts
	}

	return cfg, cfg.validate()
}

func (c config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("url must not be empty")
	}
	if c.Realm == "" {
		return fmt.Errorf("realm must not be empty")
	}
	if _, err := serializer.ByName(c.Serializer); err != nil {
		return fmt.Errorf("serializer %q: %w", c.Serializer, err)
	}
	switch c.Auth.Method {
	case "", auth.MethodAnonymous, auth.MethodTicket, auth.MethodWAMPCRA, auth.MethodCryptosign:
	default:
		return fmt.Errorf("unsupported auth method %q", c.Auth.Method)
	}
	return nil
}

func (c config) authenticator() (auth.Authenticator, error) {
	switch c.Auth.Method {
	case "", auth.MethodAnonymous:
		return auth.NewAnonymous(c.Auth.AuthID, nil), nil
	case auth.MethodTicket:
		return auth.NewTicket(c.Auth.AuthID, c.Auth.Ticket, nil), nil
	case auth.MethodWAMPCRA:
		return auth.NewWAMPCRA(c.Auth.AuthID, c.Auth.Secret, nil), nil
	case auth.MethodCryptosign:
		return auth.NewCryptosign(c.Auth.AuthID, c.Auth.PrivateKey, nil)
	}
	return nil, fmt.Errorf("unsupported auth method %q", c.Auth.Method)
}
