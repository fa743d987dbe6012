package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/scrobbler/internal/config"
	"github.com/jfmyers9/scrobbler/pkg/audioscrobbler"
)

var authVerify bool

var authCmd = &cobra.Command{
	Use:   "auth [service]",
	Short: "Store credentials for a service",
	Long: `Store the username and password used to handshake with a service.

The service defaults to lastfm. Built-in services are lastfm and librefm;
other services can be added under services.<id> in the config file.

Only the MD5 hash of the password is saved. With --verify a handshake is
made right away, and when the service has an API key and secret the
web service session key is fetched and saved as well.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)

	authCmd.Flags().BoolVar(&authVerify, "verify", true, "Handshake with the service after saving")
}

func runAuth(cmd *cobra.Command, args []string) error {
	id := "lastfm"
	if len(args) == 1 {
		id = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	svc, ok := cfg.Service(id)
	if !ok {
		return fmt.Errorf("unknown service %q: add services.%s.url to %s", id, id, config.GetConfigFile())
	}

	title := fmt.Sprintf("Authenticate with %s", id)
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", len(title)))
	fmt.Println()

	prompt := "Username: "
	if svc.Username != "" {
		prompt = fmt.Sprintf("Username [%s]: ", svc.Username)
	}
	fmt.Print(prompt)
	username, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}
	if username = strings.TrimSpace(username); username != "" {
		svc.Username = username
	}

	fmt.Print("Password: ")
	password, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password = strings.TrimRight(password, "\r\n")

	if svc.Username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}

	svc.Password = ""
	svc.PasswordHash = audioscrobbler.HashPassword(password)
	svc.Enabled = true

	if err := config.SaveCredentials(id, svc.Username, svc.PasswordHash); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	fmt.Printf("\n✓ Credentials saved to %s\n", config.GetConfigFile())

	if !authVerify {
		return nil
	}

	fmt.Println("\nHandshaking...")
	if err := verifyService(cmd.Context(), cfg, svc); err != nil {
		return err
	}

	fmt.Println("\nYou can now use 'scrobbler daemon' to start scrobbling.")
	return nil
}

// verifyService handshakes once and, when possible, fetches a session key
func verifyService(ctx context.Context, cfg *config.Config, svc config.ServiceConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	wantKey := svc.APIURL != "" && svc.APIKey != "" && svc.APISecret != "" && svc.SessionKey == ""

	authenticated := make(chan struct{}, 1)
	sessionKey := make(chan string, 1)
	failed := make(chan string, 1)
	wsFailed := make(chan string, 1)

	transport, err := audioscrobbler.NewHTTPTransport(cfg.Proxy)
	if err != nil {
		return fmt.Errorf("invalid proxy: %w", err)
	}

	session, err := audioscrobbler.NewSession(audioscrobbler.Config{
		URL:           svc.URL,
		ClientID:      cfg.Client.ID,
		ClientVersion: cfg.Client.Version,
		Username:      svc.Username,
		PasswordHash:  svc.Hash(),
		APIURL:        svc.APIURL,
		APIKey:        svc.APIKey,
		APISecret:     svc.APISecret,
		SessionKey:    svc.SessionKey,
		Transport:     transport,
		Callbacks: audioscrobbler.Callbacks{
			OnAuthenticated: func() {
				select {
				case authenticated <- struct{}{}:
				default:
				}
			},
			OnSessionKey: func(key string) {
				select {
				case sessionKey <- key:
				default:
				}
			},
			OnError: func(fatal bool, message string) {
				// Only handshake rejections are fatal
				ch := wsFailed
				if fatal {
					ch = failed
				}
				select {
				case ch <- message:
				default:
				}
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	go func() { _ = session.Run(ctx) }()
	session.Handshake()

	select {
	case <-authenticated:
		fmt.Println("✓ Handshake succeeded")
	case msg := <-failed:
		return fmt.Errorf("handshake failed: %s", msg)
	case <-ctx.Done():
		return fmt.Errorf("handshake timed out")
	}

	if !wantKey {
		return nil
	}

	select {
	case key := <-sessionKey:
		if err := config.SaveSessionKey(svc.ID, key); err != nil {
			return fmt.Errorf("failed to save session key: %w", err)
		}
		fmt.Println("✓ Web service session key saved")
	case msg := <-wsFailed:
		fmt.Printf("! Web service authentication failed: %s\n", msg)
	case <-ctx.Done():
		fmt.Println("! Web service authentication timed out")
	}
	return nil
}
