// Command renewctl is a maintenance CLI for renewbot: configuration checks,
// run history and browser fingerprint audits.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/browser"
	"go.uber.org/zap"

	"github.com/ibeckermayer/renewbot/internal/app"
	rbrowser "github.com/ibeckermayer/renewbot/internal/browser"
	"github.com/ibeckermayer/renewbot/internal/captcha"
	"github.com/ibeckermayer/renewbot/internal/config"
	"github.com/ibeckermayer/renewbot/internal/logging"
	"github.com/ibeckermayer/renewbot/internal/message"
	"github.com/ibeckermayer/renewbot/internal/notifier"
	"github.com/ibeckermayer/renewbot/internal/store"
	"github.com/ibeckermayer/renewbot/internal/types"
)

const fingerprintURL = "https://bot.sannysoft.com"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	var err error
	switch os.Args[1] {
	case "check-env":
		err = runCheckEnv()
	case "history":
		limit := 10
		if len(os.Args) > 2 {
			if limit, err = strconv.Atoi(os.Args[2]); err != nil || limit <= 0 {
				fmt.Println("Usage: renewctl history [n]")
				os.Exit(1)
			}
		}
		err = runHistory(limit)
	case "open":
		if len(os.Args) < 3 {
			fmt.Println("Usage: renewctl open <config|diagnostics>")
			os.Exit(1)
		}
		err = runOpen(os.Args[2])
	case "bot-test":
		err = runBotTest()
	case "notify-test":
		err = runNotifyTest()
	case "solve":
		if len(os.Args) < 3 {
			fmt.Println(`Usage: renewctl solve "<prompt>"`)
			os.Exit(1)
		}
		err = runSolve(os.Args[2])
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "renewctl: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: renewctl <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  check-env          Show the configured account and notification inputs (masked)")
	fmt.Println("  history [n]        Show the n most recent runs (default 10)")
	fmt.Println("  open config        Open config file in default editor")
	fmt.Println("  open diagnostics   Open the diagnostics directory in file explorer")
	fmt.Println("  bot-test           Open bot.sannysoft.com to audit browser fingerprint")
	fmt.Println("  notify-test        Send a test message through the configured provider")
	fmt.Println(`  solve "<prompt>"   Solve an arithmetic captcha prompt offline`)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(os.Getenv("RENEWBOT_CONFIG"))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

func runCheckEnv() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	values := map[string]string{
		config.EnvUsername:  cfg.Account.Username,
		config.EnvPassword:  cfg.Account.Password,
		config.EnvMachineID: cfg.Account.MachineID,
		config.EnvBotToken:  cfg.Notify.Telegram.BotToken,
		config.EnvChatID:    cfg.Notify.Telegram.ChatID,
	}
	for _, name := range config.EnvVars {
		v := values[name]
		if v == "" {
			fmt.Printf("%-20s not set\n", name)
			continue
		}
		fmt.Printf("%-20s %s\n", name, config.Mask(v))
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Println("configuration OK")
	return nil
}

func runHistory(limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path, err := cfg.HistoryPath()
	if err != nil {
		return err
	}
	s, err := store.New(path)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.RecentRuns(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, r := range runs {
		days := "-"
		if r.DaysLeft.Valid {
			days = strconv.FormatInt(r.DaysLeft.Int64, 10)
		}
		fmt.Printf("%s  %.8s  %-10s  %-26s days=%-4s %s\n",
			r.StartedAt.Local().Format(time.DateTime), r.ID, r.MachineID, r.Outcome, days,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
		if r.Error != "" {
			fmt.Printf("    error: %s\n", r.Error)
		}
	}
	return nil
}

func runOpen(target string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var path string
	switch target {
	case "config":
		path, err = config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
				if err := cfg.Save(path); err != nil {
					return err
				}
				fmt.Printf("Created default config at: %s\n", path)
			}
		}
	case "diagnostics":
		path, err = cfg.DiagnosticsDir()
		if err == nil {
			err = os.MkdirAll(path, 0700)
		}
	default:
		return fmt.Errorf("unknown target: %s", target)
	}
	if err != nil {
		return fmt.Errorf("failed to get path: %w", err)
	}

	return browser.OpenFile(path)
}

func runBotTest() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(config.LogConfig{Level: "info", Development: true})
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := app.BrowserOptions(cfg.Browser)
	opts.Headless = false // visible so the report can be inspected

	logger.Info("opening fingerprint audit page with stealth browser options", zap.String("url", fingerprintURL))
	s, err := rbrowser.Launch(context.Background(), opts, nil, logger.Named("browser"))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Page().Navigate(s.Context(), fingerprintURL, 30*time.Second); err != nil {
		logger.Warn("navigation incomplete", zap.Error(err))
	}

	fmt.Println("Press Enter to close the browser...")
	fmt.Scanln()
	return nil
}

func runNotifyTest() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	n, err := notifier.NewFromConfig(cfg.Notify, logger)
	if err != nil {
		return err
	}
	b, err := message.New(cfg.Site.Name)
	if err != nil {
		return err
	}
	msg, err := b.Build(types.OutcomeNotNeeded, message.Data{MachineID: cfg.Account.MachineID, DaysLeft: 99})
	if err != nil {
		return err
	}
	msg.Subject = "[renewbot] test message"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := n.Send(ctx, msg); err != nil {
		return err
	}
	fmt.Println("test message sent")
	return nil
}

func runSolve(prompt string) error {
	c, ok := captcha.Parse(prompt)
	if !ok {
		return fmt.Errorf("no arithmetic challenge in %q", prompt)
	}
	fmt.Printf("%s = %d\n", c, c.Answer())
	return nil
}
