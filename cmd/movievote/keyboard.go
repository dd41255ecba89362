package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/abrezinsky/movievote/internal/logger"
)

type refresher interface {
	Refresh(ctx context.Context) error
}

type urlOpener interface {
	Open(url string) error
}

// keyboard maps single key presses to server actions
type keyboard struct {
	board  refresher
	log    logger.Logger
	opener urlOpener
	url    string
	out    io.Writer
	quit   func()
}

// printKeyboardHelp displays all available keyboard shortcuts
func printKeyboardHelp(w io.Writer) {
	fmt.Fprintf(w, "\n%s%s  Keyboard Shortcuts:%s\n", bold, green, reset)
	fmt.Fprintf(w, "    %sr%s      - Refresh the board now\n", cyan, reset)
	fmt.Fprintf(w, "    %so%s      - Open the board in a browser\n", cyan, reset)
	fmt.Fprintf(w, "    %sh%s      - Toggle HTTP request logging\n", cyan, reset)
	fmt.Fprintf(w, "    %sl%s      - Cycle log level (debug → info → warn → error)\n", cyan, reset)
	fmt.Fprintf(w, "    %sq%s      - Quit server\n", cyan, reset)
	fmt.Fprintf(w, "    %s?%s      - Show this help\n\n", cyan, reset)
}

// start puts a terminal stdin into single-key mode and reads keys until ctx
// is done, quit is pressed or input ends. The returned func restores the
// terminal.
func (k *keyboard) start(ctx context.Context, in *os.File) func() {
	restore := func() {}
	if fd := int(in.Fd()); term.IsTerminal(fd) {
		if r, err := enterCbreak(fd); err == nil {
			restore = r
		} else {
			k.log.Debug("Keyboard shortcuts need line input", "error", err)
		}
	}

	go func() {
		buf := make([]byte, 1)
		for ctx.Err() == nil {
			n, err := in.Read(buf)
			if err != nil {
				return
			}
			if n == 1 && k.handleKey(ctx, buf[0]) {
				return
			}
		}
	}()
	return restore
}

// handleKey performs the action bound to key and reports whether the
// server is shutting down.
func (k *keyboard) handleKey(ctx context.Context, key byte) bool {
	switch strings.ToLower(string(key)) {
	case "r":
		fmt.Fprintf(k.out, "%sRefreshing board...%s\n", cyan, reset)
		if err := k.board.Refresh(ctx); err != nil {
			fmt.Fprintf(k.out, "%sRefresh failed: %v%s\n", red, err, reset)
		}
	case "o":
		fmt.Fprintf(k.out, "%sOpening %s in browser...%s\n", cyan, k.url, reset)
		if err := k.opener.Open(k.url); err != nil {
			fmt.Fprintf(k.out, "%sError opening browser: %v%s\n", red, err, reset)
		}
	case "h":
		if k.log.IsHTTPLoggingEnabled() {
			k.log.DisableHTTPLogging()
			fmt.Fprintf(k.out, "%sHTTP logging disabled%s\n", yellow, reset)
		} else {
			k.log.EnableHTTPLogging()
			fmt.Fprintf(k.out, "%sHTTP logging enabled%s\n", green, reset)
		}
	case "l":
		next := logger.NextLevel(k.log.GetLevel())
		k.log.SetLevel(next)
		fmt.Fprintf(k.out, "%sLog level: %s%s%s\n", green, yellow, strings.ToLower(next.String()), reset)
	case "q", "\x03": // Ctrl+C
		fmt.Fprintf(k.out, "%sShutting down server...%s\n", yellow, reset)
		k.quit()
		return true
	case "?":
		printKeyboardHelp(k.out)
	}
	return false
}
