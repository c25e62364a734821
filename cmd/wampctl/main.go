package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/kbirk/wamp/pkg/client"
	"github.com/kbirk/wamp/pkg/log"
	"github.com/kbirk/wamp/pkg/serializer"
	"github.com/kbirk/wamp/pkg/wamp"
)

const (
	version = "0.1.0"
)

var (
	configPath  string
	url         string
	realm       string
	format      string
	logLevel    string
	timeout     time.Duration
	acknowledge bool
	showVersion bool
)

var (
	red     = color.New(color.FgRed, color.Bold).SprintFunc()
	green   = color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow  = color.New(color.FgYellow, color.Bold).SprintFunc()
	cyan    = color.New(color.FgCyan, color.Bold).SprintFunc()
	magenta = color.New(color.FgMagenta, color.Bold).SprintFunc()
	white   = color.New(color.FgWhite, color.Bold).SprintFunc()
)

func usage() {
	os.Stderr.WriteString(`Usage: wampctl [flags] <command> [arguments]

Commands:
  call <procedure> [args...]     call a procedure and print the result
  publish <topic> [args...]      publish an event
  subscribe <topic>              print events until interrupted
  register <procedure>           serve an echo procedure until interrupted

Arguments are parsed as JSON when possible and sent as strings otherwise.

Flags:
`)
	flag.PrintDefaults()
}

func fail(format string, args ...any) {
	os.Stderr.WriteString(red("ERROR: ") + fmt.Sprintf(format, args...) + "\n")
	os.Exit(1)
}

func main() {

	flag.StringVar(&configPath, "config", "", "TOML config file")
	flag.StringVar(&url, "url", "", "Router URL (ws, wss, rs, rss, tcp, tcps, unix)")
	flag.StringVar(&realm, "realm", "", "Realm to join")
	flag.StringVar(&format, "serializer", "", "Serializer: json, cbor or msgpack")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Timeout for call and publish")
	flag.BoolVar(&acknowledge, "ack", false, "Request acknowledgement for publish")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Usage = usage

	flag.Parse()

	if showVersion {
		os.Stdout.WriteString("wampctl " + version + "\n")
		return
	}

	if flag.NArg() < 2 {
		usage()
		os.Exit(2)
	}

	cfg := defaultConfig()
	if configPath != "" {
		loaded, err := loadConfig(configPath)
		if err != nil {
			fail("%v", err)
		}
		cfg = loaded
	}
	cfg = applyFlags(cfg)
	if err := cfg.validate(); err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newClient(cfg)
	if err != nil {
		fail("%v", err)
	}

	command, target, args := flag.Arg(0), flag.Arg(1), parseArgs(flag.Args()[2:])

	switch command {
	case "call":
		err = runCall(ctx, c, cfg, target, args)
	case "publish":
		err = runPublish(ctx, c, cfg, target, args)
	case "subscribe":
		err = runSubscribe(ctx, c, cfg, target)
	case "register":
		err = runRegister(ctx, c, cfg, target)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil && err != context.Canceled {
		fail("%v", err)
	}
}

func applyFlags(cfg config) config {
	if url != "" {
		cfg.URL = url
	}
	if realm != "" {
		cfg.Realm = realm
	}
	if format != "" {
		cfg.Serializer = strings.ToLower(format)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg
}

func newClient(cfg config) (*client.Client, error) {
	s, err := serializer.ByName(cfg.Serializer)
	if err != nil {
		return nil, err
	}
	a, err := cfg.authenticator()
	if err != nil {
		return nil, err
	}
	return client.NewClient(client.Config{
		Serializer:    s,
		Authenticator: a,
		Logger:        log.NewConsoleWriter(os.Stderr, "wampctl", log.ParseLevel(cfg.LogLevel)),
		CloseTimeout:  cfg.CloseTimeout,
	}), nil
}

// parseArgs decodes each argument as JSON, falling back to the raw string.
func parseArgs(raw []string) []any {
	args := make([]any, 0, len(raw))
	for _, arg := range raw {
		var v any
		if err := json.Unmarshal([]byte(arg), &v); err != nil {
			v = arg
		}
		args = append(args, v)
	}
	return args
}

func formatPayload(args []any, kwargs map[string]any) string {
	var parts []string
	if len(args) > 0 {
		bs, _ := json.Marshal(args)
		parts = append(parts, string(bs))
	}
	if len(kwargs) > 0 {
		bs, _ := json.Marshal(kwargs)
		parts = append(parts, string(bs))
	}
	return strings.Join(parts, " ")
}

func runCall(ctx context.Context, c *client.Client, cfg config, procedure string, args []any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session, err := c.Connect(ctx, cfg.URL, cfg.Realm)
	if err != nil {
		return err
	}
	defer session.Close()

	res, err := session.Call(ctx, procedure, args, nil, nil)
	if err != nil {
		return err
	}

	os.Stdout.WriteString(green("RESULT: ") + formatPayload(res.Args, res.Kwargs) + "\n")
	return nil
}

func runPublish(ctx context.Context, c *client.Client, cfg config, topic string, args []any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session, err := c.Connect(ctx, cfg.URL, cfg.Realm)
	if err != nil {
		return err
	}
	defer session.Close()

	var options map[string]any
	if acknowledge {
		options = map[string]any{"acknowledge": true}
	}

	if err := session.Publish(ctx, topic, args, nil, options); err != nil {
		return err
	}

	os.Stdout.WriteString(green("PUBLISHED: ") + white(topic) + "\n")
	return nil
}

func runSubscribe(ctx context.Context, c *client.Client, cfg config, topic string) error {
	return c.Reconnect(ctx, cfg.URL, cfg.Realm, cfg.Reconnect, func(session *wamp.Session) {
		_, err := session.Subscribe(ctx, topic, func(e *wamp.Event) {
			os.Stdout.WriteString(fmt.Sprintf("%s %s %s\n", magenta("[event]"), cyan(e.PublicationID), formatPayload(e.Args, e.Kwargs)))
		}, nil)
		if err != nil {
			os.Stderr.WriteString(yellow("WARN: ") + fmt.Sprintf("Failed to subscribe to %s: %v\n", topic, err))
			session.Close()
			return
		}
		os.Stdout.WriteString(green("SUBSCRIBED: ") + white(topic) + "\n")
	})
}

func runRegister(ctx context.Context, c *client.Client, cfg config, procedure string) error {
	return c.Reconnect(ctx, cfg.URL, cfg.Realm, cfg.Reconnect, func(session *wamp.Session) {
		_, err := session.Register(ctx, procedure, func(ctx context.Context, inv *wamp.Invocation) (*wamp.Result, error) {
			os.Stdout.WriteString(fmt.Sprintf("%s %s\n", magenta("[invocation]"), formatPayload(inv.Args, inv.Kwargs)))
			return wamp.NewResult(inv.Args, inv.Kwargs), nil
		}, nil)
		if err != nil {
			os.Stderr.WriteString(yellow("WARN: ") + fmt.Sprintf("Failed to register %s: %v\n", procedure, err))
			session.Close()
			return
		}
		os.Stdout.WriteString(green("REGISTERED: ") + white(procedure) + "\n")
	})
}
