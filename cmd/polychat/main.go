package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"git.sr.ht/~delthas/polychat"
	"git.sr.ht/~delthas/polychat/chat"
	"git.sr.ht/~delthas/polychat/discord"
	"git.sr.ht/~delthas/polychat/irc"
	"git.sr.ht/~delthas/polychat/pushbullet"
	"git.sr.ht/~delthas/polychat/slack"
	"git.sr.ht/~delthas/polychat/ui"
)

func main() {
	var configPath string
	var debug bool
	var version bool
	flag.StringVar(&configPath, "config", "", "path to the configuration file")
	flag.BoolVar(&debug, "debug", false, "log debug messages")
	flag.BoolVar(&version, "version", false, "show version info")
	flag.Parse()

	if version {
		if v, ok := polychat.BuildVersion(); ok {
			fmt.Printf("polychat version %v\n", v)
		} else {
			fmt.Printf("polychat (unknown version)\n")
		}
		return
	}

	if configPath == "" {
		p, err := polychat.DefaultConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		configPath = p
	}
	cfg, err := polychat.LoadConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load the configuration file at %q: %s\n", configPath, err)
		os.Exit(1)
	}
	cfg.Debug = cfg.Debug || debug

	if !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprintf(os.Stderr, "polychat must be run in a terminal\n")
		os.Exit(1)
	}

	logFile, err := initLogging(cfg.LogFile, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open the log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("polychat stopped")
		fmt.Fprintf(os.Stderr, "polychat: %v\n", err)
		logFile.Close()
		os.Exit(1)
	}
	log.Info().Msg("polychat stopped")
}

func initLogging(path string, debug bool) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	// Truncated on startup.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	// The interface owns stdout.
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return f, nil
}

func run(cfg polychat.Config) error {
	term, err := ui.OpenTerminal(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer term.Close()

	events := chat.NewMailbox()
	app := polychat.NewApp(cfg, events, term, term.Size)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go readKeys(term, events)
	handleSignals(ctx, events)

	spawn := func(kind string, connect connectFunc) {
		go start(ctx, events, kind, connect)
	}
	for _, c := range cfg.Slack {
		spawn("slack", func(ctx context.Context) ([]chat.Conn, runner, error) {
			conn, err := slack.New(ctx, slack.Config{Name: c.Name, Token: c.Token}, events)
			if err != nil {
				return nil, nil, err
			}
			return []chat.Conn{conn}, conn, nil
		})
	}
	for _, c := range cfg.Discord {
		spawn("discord", func(ctx context.Context) ([]chat.Conn, runner, error) {
			session, err := discord.Open(ctx, discord.Config{Token: c.Token}, events)
			if err != nil {
				return nil, nil, err
			}
			var conns []chat.Conn
			for _, conn := range session.Conns() {
				conns = append(conns, conn)
			}
			return conns, session, nil
		})
	}
	for _, c := range cfg.IRC {
		spawn("irc", func(ctx context.Context) ([]chat.Conn, runner, error) {
			conn := irc.New(irc.Config{
				Name:     c.Name,
				Addr:     c.Addr,
				Nick:     c.Nick,
				User:     c.User,
				Real:     c.Real,
				Password: c.Password,
				TLS:      c.TLS,
				Channels: c.Channels,
			}, events)
			return []chat.Conn{conn}, conn, nil
		})
	}
	for _, c := range cfg.Pushbullet {
		spawn("pushbullet", func(ctx context.Context) ([]chat.Conn, runner, error) {
			conn, err := pushbullet.New(ctx, pushbullet.Config{Token: c.Token}, events)
			if err != nil {
				return nil, nil, err
			}
			return []chat.Conn{conn}, conn, nil
		})
	}

	return app.Run()
}

type runner interface {
	Run(ctx context.Context) error
}

// connectFunc performs the handshake of a backend.
type connectFunc func(ctx context.Context) ([]chat.Conn, runner, error)

// start announces the conns of a backend, then runs it until ctx is done.
func start(ctx context.Context, events *chat.Mailbox, kind string, connect connectFunc) {
	conns, r, err := connect(ctx)
	if err != nil {
		log.Error().Err(err).Str("backend", kind).Msg("failed to connect")
		events.Send(chat.Error{Text: fmt.Sprintf("%s: failed to connect: %v", kind, err)})
		return
	}
	for _, conn := range conns {
		// The app may rename the conn: wait until it did before running.
		added := make(chan struct{})
		if err := events.Send(chat.Connected{Conn: conn, Added: added}); err != nil {
			return
		}
		select {
		case <-added:
		case <-ctx.Done():
			return
		}
	}
	if err := r.Run(ctx); err != nil {
		log.Error().Err(err).Str("backend", kind).Msg("backend stopped")
		events.Send(chat.Error{Text: fmt.Sprintf("%s: %v", kind, err)})
	}
}

func readKeys(term *ui.Terminal, events *chat.Mailbox) {
	kr := ui.NewKeyReader(term)
	for {
		k, err := kr.ReadKey()
		if err != nil {
			log.Error().Err(err).Msg("failed to read from the terminal")
			events.Send(chat.Quit{})
			return
		}
		if err := events.Send(chat.Input{Key: k}); errors.Is(err, chat.ErrClosed) {
			return
		}
	}
}

func handleSignals(ctx context.Context, events *chat.Mailbox) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGHUP)
	resizeCh := make(chan os.Signal, 1)
	notifyResize(resizeCh)

	go func() {
		defer signal.Stop(sigCh)
		defer signal.Stop(resizeCh)
		for {
			var ev chat.Event
			select {
			case <-sigCh:
				ev = chat.Quit{}
			case <-resizeCh:
				ev = chat.Resize{}
			case <-ctx.Done():
				return
			}
			if err := events.Send(ev); err != nil {
				return
			}
		}
	}()
}
