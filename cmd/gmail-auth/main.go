package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"certsend/internal/config"
	"certsend/internal/credentials"
	"certsend/internal/pkg/errors"
	"certsend/internal/pkg/logger"
	"certsend/internal/pkg/shutdown"
)

// gmail-auth runs the one-time consent flow and saves the token the sender
// reuses. The scopes follow the same configuration as certsend, so enable
// ARCHIVE_PROVIDER=gdrive or PARTICIPANTS_SPREADSHEET_ID before running it
// if the sender will need them.
func main() {
	_ = config.LoadDotEnv()

	log := logger.NewDefault().WithComponent("gmail-auth")
	mgr := shutdown.NewManager(log, 5*time.Second)
	ctx, cancel := mgr.Context(context.Background())

	err := run(ctx, log, os.Args[1:])
	cancel()
	mgr.Shutdown()

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.LogExit(errors.GetExitCode(err), "authorization failed", err, "code", string(errors.GetCode(err)))
	}
}

func run(ctx context.Context, log *logger.Logger, args []string) error {
	cfg, err := config.Load("gmail-auth", args)
	if err != nil {
		return err
	}

	scopes := cfg.Scopes()
	conf, err := credentials.OAuthConfig(cfg.Google.ClientSecretsPath, cfg.Google.ClientID, cfg.Google.ClientSecret, scopes)
	if err != nil {
		return err
	}

	log.Info("starting consent flow", "scopes", scopes, "token_path", cfg.Google.TokenPath)
	store := credentials.NewStore(cfg.Google.TokenPath)
	tok, err := credentials.Bootstrap(ctx, conf, store, credentials.BootstrapOptions{
		Out: os.Stdout,
		Log: log,
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nToken saved to %s (expires %s). certsend can now send mail.\n",
		store.Path, tok.Expiry.Format(time.RFC3339))
	return nil
}
