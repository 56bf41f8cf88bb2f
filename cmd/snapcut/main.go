package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/steelcutops/snapcut/logger"
	"github.com/steelcutops/snapcut/snapcut/commandmanager"
	"github.com/steelcutops/snapcut/snapcut/declaration"
	"github.com/steelcutops/snapcut/snapcut/host"
	"github.com/steelcutops/snapcut/snapcut/hostgroup"
	"github.com/steelcutops/snapcut/snapcut/metrics"
	"github.com/steelcutops/snapcut/snapcut/snapd"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

type cli struct {
	Hostname        []string `short:"H" help:"Host to manage, repeatable. Defaults to localhost."`
	File            string   `short:"f" help:"Declaration file (INI or YAML) with hosts and desired snaps." type:"existingfile"`
	Username        string   `short:"u" help:"Username to use for SSH connections."`
	Password        bool     `help:"Prompt for an SSH password."`
	KeyPass         bool     `name:"keypass" help:"Prompt for the passphrase of SSH keys."`
	SudoPassword    bool     `name:"sudo-password" help:"Prompt for a sudo password."`
	Sudo            bool     `help:"Run mutating snap commands through sudo."`
	KnownHosts      string   `name:"known-hosts" help:"known_hosts file used to verify remote host keys." type:"existingfile"`
	Socket          string   `help:"Path of the snapd socket on the hosts." default:"/run/snapd.socket"`
	Concurrency     int      `help:"Maximum number of hosts processed at once." default:"10"`
	Debug           bool     `short:"d" help:"Enable debug logging."`
	Log             string   `help:"Log file. Defaults to stderr."`
	MetricsTextfile string   `name:"metrics-textfile" help:"Write Prometheus metrics to this file when done."`

	Apply struct{} `cmd:"" help:"Reconcile hosts against the declaration file."`

	Add struct {
		Snaps   []string `arg:"" help:"Snaps to install or refresh."`
		State   string   `help:"Desired state." default:"latest" enum:"present,latest"`
		Channel string   `help:"Channel to track." default:"latest"`
		Classic bool     `help:"Use classic confinement."`
	} `cmd:"" help:"Install or refresh snaps."`

	Remove struct {
		Snaps []string `arg:"" help:"Snaps to remove."`
	} `cmd:"" help:"Remove snaps."`

	Ensure struct {
		State   string   `arg:"" help:"Desired state: present, latest or absent." enum:"present,latest,absent"`
		Snaps   []string `arg:"" help:"Snaps to reconcile."`
		Channel string   `help:"Channel to track." default:"latest"`
		Classic bool     `help:"Use classic confinement."`
	} `cmd:"" help:"Ensure snaps are in the given state."`

	Info struct {
		Snap string `arg:"" help:"Snap to look up."`
	} `cmd:"" help:"Show what is known about a snap."`

	List struct {
		All bool `help:"Also list snaps that are only known by name."`
	} `cmd:"" help:"List installed snaps."`

	Get struct {
		Snap string `arg:""`
		Key  string `arg:""`
	} `cmd:"" help:"Print a snap configuration value."`

	Set struct {
		Snap  string `arg:""`
		Key   string `arg:""`
		Value string `arg:""`
	} `cmd:"" help:"Set a snap configuration value."`

	Unset struct {
		Snap string `arg:""`
		Key  string `arg:""`
	} `cmd:"" help:"Unset a snap configuration value."`

	InstallLocal struct {
		Path      string `arg:"" help:"Path of the .snap file on the host."`
		Classic   bool   `help:"Use classic confinement."`
		Dangerous bool   `help:"Install without a signature assertion."`
	} `cmd:"" name:"install-local" help:"Install a snap from a local file."`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("snapcut"),
		kong.Description("Reconcile the snaps installed on one or more hosts."),
		kong.UsageOnError(),
	)

	log, closeLog, err := configureLogger(&c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "snapcut: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(&c, commandName(kctx.Command()), log); err != nil {
		log.Error("snapcut failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(c *cli, command string, log logger.Logger) error {
	var decl *declaration.Declaration
	if c.File != "" {
		var err error
		decl, err = declaration.Load(c.File)
		if err != nil {
			return err
		}
	}
	if command == "apply" && decl == nil {
		return fmt.Errorf("apply needs a declaration file (--file)")
	}

	action, err := actionFor(c, command, decl, os.Stdout)
	if err != nil {
		return err
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var promRecorder *metrics.PrometheusRecorder
	if c.MetricsTextfile != "" {
		promRecorder = metrics.NewPrometheusRecorder(nil)
		recorder = promRecorder
	}

	options, err := buildHostOptions(c, log, recorder)
	if err != nil {
		return err
	}
	hostGroup := initializeHosts(hostnames(c, decl), log, options)
	if len(hostGroup.Hostnames()) == 0 {
		return fmt.Errorf("no usable hosts")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := hostGroup.Each(c.Concurrency, func(h *host.Host) error {
		return action(ctx, h)
	})

	if promRecorder != nil {
		if err := promRecorder.WriteTextfile(c.MetricsTextfile); err != nil {
			log.Error("Failed to write metrics", "path", c.MetricsTextfile, "error", err)
		}
	}
	return runErr
}

// commandName strips argument placeholders from a kong command path, so
// "add <snaps>" becomes "add".
func commandName(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func configureLogger(c *cli) (logger.Logger, func(), error) {
	var out io.Writer = os.Stderr
	closeLog := func() {}
	if c.Log != "" {
		file, err := os.OpenFile(c.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = file
		closeLog = func() { file.Close() }
	}

	log := logger.NewLogrus(out, c.Debug)
	if c.Debug {
		log.Debug("Debug mode enabled")
	}
	return log, closeLog, nil
}

func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

func buildHostOptions(c *cli, log logger.Logger, recorder metrics.Recorder) ([]host.HostOption, error) {
	options := []host.HostOption{
		host.WithLogger(log),
		host.WithRecorder(recorder),
		host.WithSSHClient(commandmanager.RealSSHClient{}),
		host.WithSudo(c.Sudo),
	}
	if c.Socket != "" && c.Socket != snapd.DefaultSocketPath {
		options = append(options, host.WithSocketPath(c.Socket))
	}
	if c.Username != "" {
		options = append(options, host.WithUser(c.Username))
	}

	if c.Password {
		password, err := readSecret("Enter the password: ")
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		options = append(options, host.WithPassword(password))
	}
	if c.KeyPass {
		keyPass, err := readSecret("Enter the key passphrase: ")
		if err != nil {
			return nil, fmt.Errorf("read key passphrase: %w", err)
		}
		options = append(options, host.WithKeyPassphrase(keyPass))
	}
	if c.SudoPassword {
		sudoPassword, err := readSecret("Enter the sudo password: ")
		if err != nil {
			return nil, fmt.Errorf("read sudo password: %w", err)
		}
		if sudoPassword != "" {
			options = append(options, host.WithSudoPassword(sudoPassword))
		}
	}

	if c.KnownHosts != "" {
		callback, err := knownhosts.New(c.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		options = append(options, host.WithHostKeyCallback(callback))
	}
	return options, nil
}

// hostnames merges --hostname flags with the hosts of the declaration,
// falling back to localhost when neither names any.
func hostnames(c *cli, decl *declaration.Declaration) []string {
	var names []string
	seen := make(map[string]bool)
	add := func(hosts []string) {
		for _, h := range hosts {
			if h != "" && !seen[h] {
				seen[h] = true
				names = append(names, h)
			}
		}
	}

	add(c.Hostname)
	if decl != nil {
		add(decl.AllHosts())
	}
	if len(names) == 0 {
		names = append(names, "localhost")
	}
	return names
}

func initializeHosts(names []string, log logger.Logger, options []host.HostOption) *hostgroup.HostGroup {
	hostGroup := hostgroup.NewHostGroup()
	for _, hostname := range names {
		log.Debug("Adding host", "host", hostname)
		h, err := host.NewHost(hostname, options...)
		if err != nil {
			log.Error("Failed to create new host", "host", hostname, "error", err)
			continue
		}
		hostGroup.AddHost(h)
	}
	return hostGroup
}
