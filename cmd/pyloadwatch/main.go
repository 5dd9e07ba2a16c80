package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"pyloadwatch/internal/api"
	"pyloadwatch/internal/config"
	"pyloadwatch/internal/log"
	"pyloadwatch/internal/pyload"
	"pyloadwatch/internal/store"
	"pyloadwatch/internal/tui"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	versionFlag := flag.Bool("version", false, "print version and exit")
	setupFlag := flag.Bool("setup", false, "rerun the connection setup")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("pyloadwatch %s\n", Version)
		return
	}

	if err := run(*setupFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(forceSetup bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := log.Setup(&cfg.Logging)
	if err != nil {
		logger = log.Null()
	}

	if forceSetup || !cfg.IsConfigured() {
		if err := runSetup(cfg, logger); err != nil {
			return err
		}
	}

	gateway := pyload.NewClient(
		cfg.Connection.BaseURL(),
		cfg.Connection.Username,
		cfg.Connection.Password,
		logger,
	)

	messenger := api.NewClient(cfg.Daemon.ListenAddr, func() (*store.Store, error) {
		return store.Open(config.DataPath())
	}, logger)

	model := tui.NewModel(gateway, messenger, cfg, logger)
	program := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run UI: %w", err)
	}
	return nil
}

// runSetup walks through the server connection settings, verifies them with
// a live login, and writes the config file.
func runSetup(cfg *config.Config, logger *slog.Logger) error {
	fmt.Println()
	fmt.Println("pyLoad Server Setup")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━")

	reader := bufio.NewReader(os.Stdin)

	protocol, err := prompt(reader, "Protocol (http/https)", cfg.Connection.Protocol)
	if err != nil {
		return err
	}
	if protocol != "http" && protocol != "https" {
		return fmt.Errorf("unsupported protocol %q", protocol)
	}

	hostname, err := prompt(reader, "Hostname", cfg.Connection.Hostname)
	if err != nil {
		return err
	}
	if hostname == "" {
		return fmt.Errorf("hostname is required")
	}

	portStr, err := prompt(reader, "Port", strconv.Itoa(cfg.Connection.Port))
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", portStr)
	}

	path, err := prompt(reader, "Path", cfg.Connection.Path)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	username, err := prompt(reader, "Username", cfg.Connection.Username)
	if err != nil {
		return err
	}

	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password := string(passwordBytes)
	fmt.Println()

	cfg.Connection = config.ConnectionConfig{
		Protocol: protocol,
		Hostname: hostname,
		Port:     port,
		Path:     path,
		Username: username,
		Password: password,
	}

	fmt.Println()
	fmt.Println("Testing connection...")

	client := pyload.NewClient(cfg.Connection.BaseURL(), username, password, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Login(ctx); err != nil {
		return fmt.Errorf("could not log in to %s: %w", cfg.Connection.BaseURL(), err)
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println("Connected. Settings saved.")
	fmt.Println()
	return nil
}

func prompt(reader *bufio.Reader, label, fallback string) (string, error) {
	if fallback != "" {
		fmt.Printf("%s [%s]: ", label, fallback)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return fallback, nil
	}
	return line, nil
}
