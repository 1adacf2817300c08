package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"classbot/internal/app"
	"classbot/internal/config"
	"classbot/internal/gcal"
)

func main() {
	var (
		cfgPath   string
		authorize bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.BoolVar(&authorize, "authorize", false, "run the calendar OAuth flow on the terminal and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if authorize {
		if err := runAuthorize(ctx, cfgPath); err != nil {
			fmt.Fprintln(os.Stderr, "authorize:", err)
			os.Exit(1)
		}
		fmt.Println("Token saved. Start the bot normally now.")
		return
	}

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)

	if err := a.Err(); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

// runAuthorize performs the installed-app OAuth exchange on the terminal,
// using the calendar paths from the same config file the bot runs with.
func runAuthorize(ctx context.Context, cfgPath string) error {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return err
	}
	return gcal.Authorize(ctx, cfg.Calendar.CredentialsFile, cfg.Calendar.TokenDirOrDefault(),
		func(authURL string) (string, error) {
			fmt.Println("Open this URL in a browser, approve access, then paste the code here:")
			fmt.Println()
			fmt.Println("  " + authURL)
			fmt.Println()
			fmt.Print("Code: ")
			sc := bufio.NewScanner(os.Stdin)
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return "", err
				}
				return "", fmt.Errorf("no code entered")
			}
			return strings.TrimSpace(sc.Text()), nil
		})
}
