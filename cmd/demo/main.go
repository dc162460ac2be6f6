// Command demo drives the auth client against a backend (by default the
// local stub api): widget or popup login, an optional second-factor step,
// session persistence, and the security monitor.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"

	"github.com/jmcveigh/portfolio-auth/broker"
	"github.com/jmcveigh/portfolio-auth/broker/statestore"
	"github.com/jmcveigh/portfolio-auth/fingerprint"
	"github.com/jmcveigh/portfolio-auth/internal/config"
	"github.com/jmcveigh/portfolio-auth/monitor"
	"github.com/jmcveigh/portfolio-auth/providers"
	"github.com/jmcveigh/portfolio-auth/session"
	"github.com/jmcveigh/portfolio-auth/storage"
	"github.com/jmcveigh/portfolio-auth/tokens"
)

func main() {
	googleToken := flag.String("google-token", "", "login with a Google ID token (widget flow)")
	githubLogin := flag.Bool("github", false, "login via the GitHub popup flow")
	totpSecret := flag.String("totp-secret", "", "print the current code for an authenticator secret and exit")
	flag.Parse()

	if *totpSecret != "" {
		code, err := totp.GenerateCode(*totpSecret, time.Now())
		if err != nil {
			log.Fatalf("could not generate code: %s", err)
		}
		fmt.Println(code)
		return
	}

	figure.NewFigure("Portfolio Auth", "cybermedium", true).Print()
	fmt.Println()

	if err := run(*googleToken, *githubLogin); err != nil {
		log.Fatalf("demo failed: %s", err)
	}
}

func run(googleToken string, githubLogin bool) error {
	ctx := context.Background()
	cfg := config.New()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	records, err := openRecords(cfg)
	if err != nil {
		return err
	}

	manager := tokens.New(cfg.GetAPIBaseURL(), tokens.WithLogger(logger))
	device := fingerprint.FromEnvironment(cfg.GetAppName(), "dev")

	store, err := session.NewStore(manager, records,
		session.WithLogger(logger),
		session.WithDeviceFingerprint(device.Derive()),
		session.WithInactivityThreshold(cfg.GetInactivityThreshold()),
	)
	if err != nil {
		return err
	}

	mon := monitor.New(
		monitor.NewHTTPReporter(cfg.GetAPIBaseURL(), nil),
		monitor.WithEnv(cfg.GetEnv()),
		monitor.WithReportWindow(cfg.GetReportWindow()),
		monitor.WithClientInfo(device.UserAgent, cfg.GetAppOrigin()),
		monitor.WithMonitorLogger(logger),
		monitor.WithProbes(
			monitor.MemoryProbe{Threshold: cfg.GetHeapPressureThreshold(), SampleInterval: cfg.GetMemorySampleInterval()},
			monitor.DebuggerProbe{SampleInterval: cfg.GetDebuggerProbeInterval()},
		),
	)
	defer mon.Close()
	mon.Start(ctx)

	if store.Rehydrate() {
		fmt.Printf("Restored session for %s; refreshing access token...\n", store.User().Email)
		if err := store.RefreshAccessToken(ctx); err != nil {
			fmt.Println("Refresh failed; signing in again.")
			store.ClearAuth(ctx)
		}
	}

	if !store.IsAuthenticated() {
		if err := login(ctx, cfg, store, googleToken, githubLogin); err != nil {
			mon.ObserveError(err)
			return err
		}
	}

	if store.TwoFactorRequired() {
		if err := verifySecondFactor(ctx, store); err != nil {
			return err
		}
	}

	store.UpdateLastActivity()
	printState(store)
	return nil
}

func login(ctx context.Context, cfg config.Config, store *session.Store, googleToken string, githubLogin bool) error {
	if githubLogin {
		registry := providers.NewRegistry(cfg)
		entry, err := registry.Get(providers.GitHub)
		if err != nil {
			return err
		}
		popupBroker := broker.NewPopupBroker(entry, stdinOpener{origin: cfg.GetAppOrigin()}, statestore.NewInMemoryRepo(), cfg.GetAppOrigin())
		code, err := popupBroker.Login(ctx)
		if err != nil {
			return err
		}
		return store.Login(ctx, code)
	}

	if googleToken == "" {
		return fmt.Errorf("supply -google-token or -github")
	}

	widget := broker.NewWidgetBroker()
	if err := widget.Bind(func(ctx context.Context, credential broker.GoogleIDToken) {
		if err := store.Login(ctx, credential); err != nil {
			log.Printf("login failed: %s", err)
		}
	}); err != nil {
		return err
	}
	defer widget.Unbind()
	return widget.HandleCallback(ctx, broker.WidgetPayload{Credential: googleToken})
}

func verifySecondFactor(ctx context.Context, store *session.Store) error {
	reader := bufio.NewReader(os.Stdin)
	for store.TwoFactorRequired() {
		fmt.Print("Enter the 6-digit code from your authenticator: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			store.CancelTwoFactor()
			return err
		}
		if err := store.VerifyTwoFactor(ctx, strings.TrimSpace(line)); err != nil {
			fmt.Printf("Code rejected: %s\n", store.ErrorMessage())
			continue
		}
		break
	}
	return nil
}

func openRecords(cfg config.Config) (storage.Store, error) {
	if err := os.MkdirAll(cfg.GetDataFolder(), 0o755); err != nil {
		return storage.NewInMemoryStore(), nil
	}
	records, err := storage.NewSQLiteStore(filepath.Join(cfg.GetDataFolder(), "session.db"))
	if err != nil {
		// Fall back to a volatile session rather than refusing to start.
		return storage.NewInMemoryStore(), nil
	}
	return records, nil
}

func printState(store *session.Store) {
	user := store.User()
	secCtx := store.SecurityContext()
	fmt.Println()
	fmt.Printf("Authenticated: %v\n", store.IsAuthenticated())
	if user != nil {
		fmt.Printf("User:          %s <%s> (admin=%v)\n", user.DisplayName, user.Email, user.IsAdmin())
	}
	if secCtx != nil {
		fmt.Printf("Session id:    %s\n", secCtx.SessionID)
		fmt.Printf("Last activity: %s\n", secCtx.LastActivity.Format(time.RFC3339))
	}
}

// stdinOpener is the CLI stand-in for a browsing context: it prints the
// authorize URL for the user to visit and reads the redirected callback
// parameters (code, then state) from stdin.
type stdinOpener struct {
	origin string
}

func (o stdinOpener) Open(url string) (broker.Popup, error) {
	fmt.Printf("Open this URL in a browser and authorize:\n  %s\n", url)
	fmt.Println("Paste the returned code, then the returned state, each on its own line (blank line to cancel):")

	p := &stdinPopup{messages: make(chan broker.Message, 1)}
	go func() {
		defer close(p.messages)
		reader := bufio.NewReader(os.Stdin)
		code, err := reader.ReadString('\n')
		if err != nil {
			p.markClosed()
			return
		}
		state, err := reader.ReadString('\n')
		if err != nil || strings.TrimSpace(code) == "" {
			p.markClosed()
			return
		}
		p.messages <- broker.Message{
			Origin: o.origin,
			Type:   broker.MessageTypeOAuthCallback,
			Code:   strings.TrimSpace(code),
			State:  strings.TrimSpace(state),
		}
	}()
	return p, nil
}

type stdinPopup struct {
	messages chan broker.Message
	closed   atomic.Bool
}

func (p *stdinPopup) markClosed() { p.closed.Store(true) }

func (p *stdinPopup) Messages() <-chan broker.Message { return p.messages }

func (p *stdinPopup) Closed() bool { return p.closed.Load() }

func (p *stdinPopup) Close() {}
