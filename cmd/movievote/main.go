package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/abrezinsky/movievote/internal/app"
	"github.com/abrezinsky/movievote/internal/browser"
	"github.com/abrezinsky/movievote/internal/config"
	"github.com/abrezinsky/movievote/internal/logger"
)

// ANSI escape codes
const (
	reset  = "\033[0m"
	yellow = "\033[33m"
	red    = "\033[31m"
	green  = "\033[32m"
	cyan   = "\033[36m"
	bold   = "\033[1m"
)

var (
	version = "dev"
)

func showLogo(w io.Writer) {
	logo := []string{
		" __  __            _    __     __    _       ",
		"|  \\/  | _____   _(_) __\\ \\   / /__ | |_ ___ ",
		"| |\\/| |/ _ \\ \\ / / |/ _ \\ \\ / / _ \\| __/ _ \\",
		"| |  | | (_) \\ V /| |  __/\\ V / (_) | ||  __/",
		"|_|  |_|\\___/ \\_/ |_|\\___| \\_/ \\___/ \\__\\___|",
	}
	fmt.Fprintln(w)
	for _, line := range logo {
		fmt.Fprintf(w, "  %s%s%s\n", yellow, line, reset)
	}
	fmt.Fprintln(w)
}

// flags holds command line overrides. Only flags set explicitly replace
// values from the config file or environment.
type flags struct {
	configPath  string
	port        int
	remote      string
	dbPath      string
	logLevel    string
	policy      string
	noKeyboard  bool
	demo        bool
	showVersion bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*flags, error) {
	f := &flags{}
	fs.StringVar(&f.configPath, "config", "", "Config file path (default movievote.yaml if present)")
	fs.IntVar(&f.port, "port", 0, "Gateway HTTP port")
	fs.StringVar(&f.remote, "remote", "", "Movie backend base URL")
	fs.StringVar(&f.dbPath, "db", "", "SQLite cache path")
	fs.StringVar(&f.logLevel, "loglevel", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.policy, "policy", "", "Failed vote policy (rollback, keep)")
	fs.BoolVar(&f.noKeyboard, "nokeyboard", false, "Disable keyboard shortcuts")
	fs.BoolVar(&f.demo, "demo", false, "Use an in-memory demo backend")
	fs.BoolVar(&f.showVersion, "version", false, "Show version and exit")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// apply copies the explicitly set flags over cfg and revalidates it
func (f *flags) apply(fs *flag.FlagSet, cfg *config.Config) error {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "port":
			cfg.Server.Port = f.port
		case "remote":
			cfg.Remote.BaseURL = f.remote
		case "db":
			cfg.Store.Path = f.dbPath
		case "loglevel":
			cfg.Log.Level = strings.ToLower(f.logLevel)
		case "policy":
			cfg.Voting.FailurePolicy = strings.ToLower(f.policy)
		case "nokeyboard":
			cfg.Server.Keyboard = !f.noKeyboard
		case "demo":
			cfg.Demo = f.demo
		}
	})
	return cfg.Validate()
}

const usage = `MovieVote - optimistic voting gateway for a movie catalogue

Usage:
  movievote [options] [command] [args]

Commands:
  serve                  Run the local gateway (default)
  login <email>          Sign in (password from MOVIEVOTE_PASSWORD or prompt)
  logout                 Sign out and forget the saved session
  whoami                 Show the signed-in user
  ls                     List the board
  vote <movie> up|down   Click a vote button
  comments <movie>       List a movie's comments
  share <movie>          Print a movie's share link

Options:
  -config string   Config file path (default movievote.yaml if present)
  -port int        Gateway HTTP port (default 8090)
  -remote string   Movie backend base URL (default "http://localhost:5000")
  -db string       SQLite cache path (default "movievote.db")
  -loglevel str    Log level: debug, info, warn, error (default "info")
  -policy string   Failed vote policy: rollback, keep (default "rollback")
  -nokeyboard      Disable keyboard shortcuts
  -demo            Use an in-memory demo backend
  -version         Show version and exit
  -help            Show this help message

Keyboard Shortcuts (serve, when enabled):
  r              Refresh the board now
  o              Open the board in a browser
  h              Toggle HTTP request logging
  l              Cycle log level (debug → info → warn → error)
  q              Quit server
  ?              Show keyboard help

Examples:
  movievote -demo                          # Try it without a backend
  movievote -remote https://api.example    # Serve against a real backend
  movievote login dana@example.com
  movievote vote 64b7f0c2 up
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("movievote", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f, err := parseFlags(fs, args)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	if f.showVersion {
		fmt.Fprintf(stdout, "movievote %s\n", version)
		return 0
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "%sError: %v%s\n", red, err, reset)
		return 1
	}
	if err := f.apply(fs, cfg); err != nil {
		fmt.Fprintf(stderr, "%sError: %v%s\n", red, err, reset)
		return 1
	}

	command := "serve"
	rest := fs.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	// Commands log to stderr so their output stays scriptable
	logOut := stderr
	if command == "serve" {
		logOut = stdout
	}
	appLog := logger.NewWithOptions(logOut, logger.ParseLevel(cfg.Log.Level), logger.ParseFormat(cfg.Log.Format))
	if cfg.Log.HTTP {
		appLog.EnableHTTPLogging()
	}

	client, err := app.NewClient(cfg, appLog)
	if err != nil {
		fmt.Fprintf(stderr, "%sError: %v%s\n", red, err, reset)
		return 1
	}
	a, err := app.New(appLog, cfg, client)
	if err != nil {
		fmt.Fprintf(stderr, "%sFailed to initialize application: %v%s\n", red, err, reset)
		return 1
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if command == "serve" {
		if err := serve(ctx, stop, a, cfg, appLog, stdout); err != nil {
			fmt.Fprintf(stderr, "%sError: %v%s\n", red, err, reset)
			return 1
		}
		return 0
	}

	c := &cli{app: a, in: stdin, out: stdout}
	if err := c.dispatch(ctx, command, rest); err != nil {
		fmt.Fprintf(stderr, "%sError: %v%s\n", red, err, reset)
		return 1
	}
	return 0
}

func serve(ctx context.Context, stop context.CancelFunc, a *app.App, cfg *config.Config, appLog *logger.SlogLogger, out io.Writer) error {
	showLogo(out)
	a.Start(ctx)

	opener := browser.New()
	if cfg.Server.OpenBrowser {
		if err := opener.Open(a.BoardURL()); err != nil {
			appLog.Warn("Failed to open browser", "error", err)
		}
	}

	if cfg.Server.Keyboard {
		printKeyboardHelp(out)
		kb := &keyboard{
			board:  a,
			log:    appLog,
			opener: opener,
			url:    a.BoardURL(),
			out:    out,
			quit:   stop,
		}
		restore := kb.start(ctx, os.Stdin)
		defer restore()
	} else {
		fmt.Fprintf(out, "\n%sKeyboard shortcuts disabled%s\n\n", yellow, reset)
	}

	return a.Run(ctx)
}
