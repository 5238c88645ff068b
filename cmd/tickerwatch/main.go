package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shubham-shewale/live-tickers/pkg/config"
	"github.com/shubham-shewale/live-tickers/pkg/models"
	"github.com/shubham-shewale/live-tickers/pkg/tickerclient"
)

var (
	email    string
	password string
	duration time.Duration
	quiet    bool
)

var rootCmd = &cobra.Command{
	Use:   "tickerwatch",
	Short: "Watch the live ticker feed",
	Long: `tickerwatch logs in to a live-tickers gateway, opens the ticker channel and prints
every snapshot, price update and price alert until interrupted.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&email, "email", "watcher@example.com", "login email")
	rootCmd.Flags().StringVar(&password, "password", "", "login password")
	rootCmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	rootCmd.Flags().BoolVar(&quiet, "alerts-only", false, "print alerts only")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	base, err := httpBase(cfg.Client.URL)
	if err != nil {
		return err
	}
	token, err := tickerclient.Login(ctx, nil, base, email, password)
	if err != nil {
		return err
	}

	manager := tickerclient.NewManager(token, tickerclient.Options{
		URL:             cfg.Client.URL,
		DisconnectGrace: time.Duration(cfg.Client.DisconnectGraceMs) * time.Millisecond,
		ReconnectDelay:  time.Duration(cfg.Client.ReconnectDelayMs) * time.Millisecond,
	}, logger)
	defer manager.Close()

	out := cmd.OutOrStdout()
	symbols := map[string]string{}

	if !quiet {
		unsubscribe := manager.Subscribe(tickerclient.Handlers{
			OnInit: func(instruments []models.Instrument) {
				for _, inst := range instruments {
					symbols[inst.ID] = inst.Symbol
					fmt.Fprintf(out, "%-6s %-28s %10.2f  day %.2f-%.2f\n",
						inst.Symbol, inst.Name, inst.Price, inst.DayRange.Low(), inst.DayRange.High())
				}
			},
			OnUpdate: func(updates []models.PriceUpdate) {
				parts := make([]string, 0, len(updates))
				for _, u := range updates {
					name := symbols[u.ID]
					if name == "" {
						name = u.ID
					}
					parts = append(parts, fmt.Sprintf("%s %.2f", name, u.NextPrice))
				}
				fmt.Fprintf(out, "%s  %s\n", time.Now().Format("15:04:05"), strings.Join(parts, " | "))
			},
		})
		defer unsubscribe()
	}

	unsubscribeAlerts := manager.Subscribe(tickerclient.Handlers{
		OnAlert: func(a models.PriceAlert) {
			fmt.Fprintf(out, "ALERT %s %.2f -> %.2f (%+.2f%%)\n", a.Symbol, a.PreviousPrice, a.NextPrice, a.ChangePct)
		},
	})
	defer unsubscribeAlerts()

	logger.Info("Watching tickers", zap.String("url", cfg.Client.URL))
	<-ctx.Done()
	return nil
}

// httpBase turns ws://host:port/ws/tickers into http://host:port.
func httpBase(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("parse client.url: %w", err)
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	default:
		log.Printf("Unexpected scheme %q in client.url", u.Scheme)
	}
	u.Path, u.RawQuery = "", ""
	return u.String(), nil
}
