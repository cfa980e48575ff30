package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yarkm13/bridge"
)

// app holds the state shared by every command of one invocation.
type app struct {
	factories []bridge.Factory
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer

	v      *viper.Viper
	logger zerolog.Logger

	// askPassword reads a password without echo. Replaced in tests.
	askPassword func(prompt io.Writer) ([]byte, error)
}

func defaultFactories() []bridge.Factory {
	return bridge.DefaultRegistry.Factories
}

func newApp(factories []bridge.Factory, stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		factories:   factories,
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		v:           viper.New(),
		logger:      zerolog.Nop(),
		askPassword: askPassword,
	}
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bridge",
		Short: "Transfer files over SFTP, SCP, FTP, FTPS and HTTP with one interface",
		Long: `bridge talks to a remote file store addressed by URL. The URL scheme
selects the backend: ssh, scp and sftp use SSH; ftp and ftps use FTP;
http and https use plain HTTP requests.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configure()
		},
	}
	rootCmd.SetIn(a.stdin)
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringP("url", "u", "", "remote URL, e.g. sftp://user@host/dir (env BRIDGE_URL)")
	flags.String("config", "", "YAML config file with url and options")
	flags.String("fingerprint", "", "expected SSH host key fingerprint")
	flags.Bool("ask-password", false, "prompt for the password when the URL has a user but none")
	flags.BoolP("verbose", "v", false, "log debug output")

	for _, name := range []string{"url", "fingerprint", "ask-password", "verbose"} {
		a.v.BindPFlag(name, flags.Lookup(name))
	}
	a.v.BindPFlag("config", flags.Lookup("config"))

	rootCmd.AddCommand(
		a.protocolsCmd(),
		a.pwdCmd(),
		a.lsCmd(),
		a.getCmd(),
		a.putCmd(),
		a.rmCmd(),
		a.mvCmd(),
		a.mkdirCmd(),
		a.rmdirCmd(),
		a.existsCmd(),
	)
	return rootCmd
}

// configure reads the config file and environment and sets up logging.
func (a *app) configure() error {
	a.v.SetEnvPrefix("BRIDGE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if file := a.v.GetString("config"); file != "" {
		a.v.SetConfigFile(file)
		a.v.SetConfigType("yaml")
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", file, err)
		}
	}

	level := zerolog.InfoLevel
	if a.v.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: a.stderr}).Level(level).With().Timestamp().Logger()
	return nil
}

// options returns the backend options from the config file, with the
// --fingerprint flag taking precedence.
func (a *app) options() bridge.Options {
	opts := bridge.Options{}
	for k, v := range a.v.GetStringMap("options") {
		opts[k] = v
	}
	if fp := a.v.GetString("fingerprint"); fp != "" {
		opts["fingerprint"] = fp
	}
	return opts
}

func (a *app) registry() *bridge.Registry {
	return &bridge.Registry{
		Factories: a.factories,
		Logger:    a.logger.With().Str("module", "bridge").Logger(),
	}
}

// open connects to the configured URL.
func (a *app) open() (*bridge.Bridge, error) {
	rawURL := a.v.GetString("url")
	if rawURL == "" {
		return nil, errors.New("missing required parameter: --url")
	}

	if a.v.GetBool("ask-password") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid URL: %w", err)
		}
		if _, set := u.User.Password(); u.User != nil && !set {
			password, err := a.askPassword(a.stderr)
			if err != nil {
				return nil, fmt.Errorf("reading password: %w", err)
			}
			u.User = url.UserPassword(u.User.Username(), string(password))
			secureWipe(password)
			rawURL = u.String()
		}
	}

	return a.registry().Open(rawURL, a.options())
}

// withBridge opens a connection, runs fn and closes the connection.
func (a *app) withBridge(fn func(b *bridge.Bridge) error) error {
	b, err := a.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}()
	return fn(b)
}
