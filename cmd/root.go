package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/saravenpi/chatterbox/internal/config"
	"github.com/saravenpi/chatterbox/internal/gateway"
	"github.com/saravenpi/chatterbox/internal/log"
	"github.com/saravenpi/chatterbox/internal/session"
	"github.com/saravenpi/chatterbox/internal/transport"
	"github.com/saravenpi/chatterbox/internal/ui"
)

func init() {
	// Query the terminal background before bubbletea owns stdin, otherwise the
	// OSC 11 reply can leak into the composer.
	_ = lipgloss.HasDarkBackground()
}

const (
	envPrefix       = "CHATTERBOX"
	localConfigPath = ".chatterbox/config.yaml"
	dialTimeout     = 10 * time.Second
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
	cfgErr  error
)

var rootCmd = &cobra.Command{
	Use:     "chatterbox",
	Short:   "Terminal client for one-to-one chat",
	Long:    `A terminal chat client: contacts with unread badges and online status, live conversations and a composer.`,
	Version: version,
	RunE:    runApp,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/chatterbox/config.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "write debug logs to the log file")
	rootCmd.PersistentFlags().String("log-level", "", "minimum log level (debug, info, warn, error)")
	rootCmd.Flags().String("api", "", "REST API base URL")
	rootCmd.Flags().String("socket", "", "push event websocket URL")
	rootCmd.Flags().StringP("user", "u", "", "id of the logged-in user")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("api.base_url", rootCmd.Flags().Lookup("api"))
	_ = viper.BindPFlag("socket.url", rootCmd.Flags().Lookup("socket"))
	_ = viper.BindPFlag("user_id", rootCmd.Flags().Lookup("user"))
}

func initConfig() {
	home, _ := os.UserHomeDir()
	cfg, cfgErr = loadConfig(viper.GetViper(), cfgFile, filepath.Join(home, ".config", "chatterbox"))
}

// loadConfig resolves the configuration into v. Lookup order: explicit path,
// ./.chatterbox/config.yaml, then userDir/config.yaml. When none exists a
// default file is written to userDir.
func loadConfig(v *viper.Viper, explicit, userDir string) (config.Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case explicit != "":
		v.SetConfigFile(explicit)
	case fileExists(localConfigPath):
		v.SetConfigFile(localConfigPath)
	default:
		v.AddConfigPath(userDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config.Config{}, fmt.Errorf("reading config: %w", err)
		}
		defaultPath := filepath.Join(userDir, "config.yaml")
		if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
			v.SetConfigFile(defaultPath)
			_ = v.ReadInConfig()
		}
	}

	var c config.Config
	if err := v.Unmarshal(&c); err != nil {
		return config.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	defaults := config.Defaults()
	v.SetDefault("api.base_url", defaults.API.BaseURL)
	v.SetDefault("api.timeout", defaults.API.Timeout)
	v.SetDefault("api.token", defaults.API.Token)
	v.SetDefault("socket.url", defaults.Socket.URL)
	v.SetDefault("user_id", defaults.UserID)
	v.SetDefault("cache.contacts_ttl", defaults.Cache.ContactsTTL)
	v.SetDefault("ui.toast_duration", defaults.UI.ToastDuration)
	v.SetDefault("ui.show_online_only", defaults.UI.ShowOnlineOnly)
	v.SetDefault("debug", defaults.Debug)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_file", defaults.LogFile)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// setupLogging enables file logging when debug is on. The returned func
// closes the log file.
func setupLogging(c config.Config) (func(), error) {
	if !c.Debug {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(c.LogFile), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	closeLog, err := log.Init(c.LogFile)
	if err != nil {
		return nil, err
	}
	log.SetMinLevel(log.ParseLevel(c.LogLevel))
	log.Info(log.CatConfig, "config loaded", "file", viper.ConfigFileUsed(), "api", c.API.BaseURL)
	return closeLog, nil
}

func runApp(cmd *cobra.Command, args []string) error {
	if cfgErr != nil {
		return cfgErr
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	var opts []gateway.HTTPOption
	if cfg.API.Token != "" {
		opts = append(opts, gateway.WithToken(cfg.API.Token))
	}
	client, err := gateway.NewHTTPClient(cfg.API.BaseURL, cfg.API.Timeout, opts...)
	if err != nil {
		return fmt.Errorf("creating API client: %w", err)
	}
	gw := gateway.NewCached(client, cfg.Cache.ContactsTTL)

	notifier := ui.NewTeaNotifier()

	tr, closeTransport := dialTransport(cmd.Context(), cfg, notifier)
	defer closeTransport()

	store := session.New(gw, tr, session.WithNotifier(notifier))
	return runSession(cmd.Context(), store, notifier, ui.Options{
		ToastDuration:  cfg.UI.ToastDuration,
		ShowOnlineOnly: cfg.UI.ShowOnlineOnly,
		OnReload:       gw.Invalidate,
	})
}

// dialTransport connects the push channel. Without it the client still
// works against the REST API, just without live updates.
func dialTransport(ctx context.Context, c config.Config, notifier *ui.TeaNotifier) (transport.Transport, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	header := http.Header{}
	if c.API.Token != "" {
		header.Set("Authorization", "Bearer "+c.API.Token)
	}

	ws, err := transport.DialWebSocket(dialCtx, c.Socket.URL, c.UserID, header)
	if err != nil {
		log.ErrorErr(log.CatTransport, "dial failed", err, "url", c.Socket.URL)
		notifier.Error("Live updates unavailable")
		return transport.NewLoopback(), func() {}
	}

	closing := make(chan struct{})
	go watchTransport(ws, closing, notifier)
	return ws, func() {
		close(closing)
		_ = ws.Close()
	}
}

// watchTransport tells the user when the push channel drops unexpectedly.
func watchTransport(ws *transport.WebSocket, closing <-chan struct{}, notifier *ui.TeaNotifier) {
	select {
	case <-closing:
	case <-ws.Done():
		if err := ws.Err(); err != nil {
			log.ErrorErr(log.CatTransport, "connection lost", err)
			notifier.Error("Live updates disconnected")
		}
	}
}

// runSession runs the TUI until the user quits, then tears the session down.
func runSession(ctx context.Context, store *session.Store, notifier *ui.TeaNotifier, opts ui.Options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer store.Close()

	model := ui.New(ctx, store, notifier, opts)
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
