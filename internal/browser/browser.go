package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// Commander is an interface for executing commands (for testing)
type Commander interface {
	Start(name string, args ...string) error
}

// RealCommander executes actual commands
type RealCommander struct{}

// Start executes a command and starts it
func (RealCommander) Start(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

// Opener launches the desktop browser on movie pages and the gateway
type Opener struct {
	commander Commander
	goos      string
}

// New returns an Opener for the running platform
func New() *Opener {
	return &Opener{commander: RealCommander{}, goos: runtime.GOOS}
}

// NewWithCommander returns an Opener that runs commands through c as if on goos
func NewWithCommander(c Commander, goos string) *Opener {
	return &Opener{commander: c, goos: goos}
}

// Open opens an http or https URL in the default browser
func (o *Opener) Open(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("refusing to open %q: only http and https are supported", rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("refusing to open %q: missing host", rawURL)
	}

	name, args, err := command(o.goos, u.String())
	if err != nil {
		return err
	}
	return o.commander.Start(name, args...)
}

func command(goos, target string) (string, []string, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{target}, nil
	case "darwin":
		return "open", []string{target}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}, nil
	}
	return "", nil, fmt.Errorf("unsupported platform: %s", goos)
}
