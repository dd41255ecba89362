package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/abrezinsky/movievote/internal/app"
	"github.com/abrezinsky/movievote/internal/votes"
)

// PasswordEnvVar supplies the login password without a prompt
const PasswordEnvVar = "MOVIEVOTE_PASSWORD"

var errUsage = stderrors.New("invalid arguments, see movievote -help")

// cli runs the one-shot commands against a wired App
type cli struct {
	app *app.App
	in  io.Reader
	out io.Writer
}

func (c *cli) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return c.login(ctx, args)
	case "logout":
		return c.logout(ctx)
	case "whoami":
		return c.whoami(ctx)
	case "ls":
		return c.list(ctx)
	case "vote":
		return c.vote(ctx, args)
	case "comments":
		return c.comments(ctx, args)
	case "share":
		return c.share(args)
	}
	return fmt.Errorf("unknown command %q, see movievote -help", command)
}

func (c *cli) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	password, err := c.password()
	if err != nil {
		return err
	}
	viewer, err := c.app.Session().Login(ctx, args[0], password)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%sSigned in as %s <%s>%s\n", green, viewer.User.Name, viewer.User.Email, reset)
	return nil
}

// password reads the login password from the environment, a hidden
// terminal prompt, or the first line of input.
func (c *cli) password() (string, error) {
	if pw := os.Getenv(PasswordEnvVar); pw != "" {
		return pw, nil
	}
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(c.out, "Password: ")
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", stderrors.New("no password given")
	}
	return line, nil
}

func (c *cli) logout(ctx context.Context) error {
	if _, err := c.app.Session().Restore(ctx); err != nil {
		return err
	}
	if err := c.app.Session().Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Signed out")
	return nil
}

func (c *cli) whoami(ctx context.Context) error {
	viewer, err := c.app.Session().Restore(ctx)
	if err != nil {
		return err
	}
	if !viewer.Authenticated() {
		fmt.Fprintln(c.out, "Not signed in")
		return nil
	}
	fmt.Fprintf(c.out, "%s <%s> (%s)\n", viewer.User.Name, viewer.User.Email, viewer.User.Role)
	return nil
}

func (c *cli) list(ctx context.Context) error {
	c.app.Restore(ctx)
	voting := c.app.Voting()
	board := voting.Board()
	if len(board) == 0 {
		return stderrors.New("no movies available")
	}

	if voting.Offline() {
		note := "backend unreachable, showing cached board"
		if at, err := voting.LastRefresh(ctx); err == nil {
			note += " from " + at.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(c.out, "%s%s%s\n", yellow, note, reset)
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tUP\tDOWN\tNET\tYOU")
	for _, mv := range board {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", mv.ID, mv.Title, mv.Upvotes, mv.Downvotes, mv.ScoreLabel, viewerMark(mv.Viewer))
	}
	return tw.Flush()
}

func viewerMark(d votes.Direction) string {
	switch d {
	case votes.Positive:
		return "▲"
	case votes.Negative:
		return "▼"
	}
	return ""
}

func (c *cli) vote(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	action, err := votes.ParseAction(args[1])
	if err != nil {
		return err
	}

	viewer := c.app.Restore(ctx)
	outcome, err := c.app.Voting().Vote(ctx, viewer, args[0], action)
	if err != nil {
		return err
	}
	if !outcome.Applied {
		return stderrors.New("sign in to vote: movievote login <email>")
	}

	s := outcome.State
	fmt.Fprintf(c.out, "%s%s%s  ▲ %d  ▼ %d  %s %s\n", bold, args[0], reset, s.Upvotes, s.Downvotes, s.Label(), viewerMark(s.Viewer))
	return nil
}

func (c *cli) comments(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	list, err := c.app.Movies().Comments(ctx, args[0])
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No comments yet")
		return nil
	}
	for _, cm := range list {
		fmt.Fprintf(c.out, "%s%s%s %s\n  %s\n", cyan, cm.User.Name, reset, cm.CreatedAt, cm.Body)
	}
	return nil
}

func (c *cli) share(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	fmt.Fprintln(c.out, c.app.Share().MovieURL(args[0]))
	return nil
}
