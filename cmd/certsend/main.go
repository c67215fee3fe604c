package main

import (
	"context"
	"flag"
	"os"
	"time"

	"certsend/internal/batch"
	"certsend/internal/certificate"
	"certsend/internal/config"
	"certsend/internal/credentials"
	"certsend/internal/mail"
	"certsend/internal/participants"
	"certsend/internal/pkg/errors"
	"certsend/internal/pkg/logger"
	"certsend/internal/pkg/shutdown"
	"certsend/internal/storage"
)

func main() {
	dotenvErr := config.LoadDotEnv()

	log := logger.NewDefault()
	if dotenvErr != nil {
		log.Warn("ignoring unreadable .env file", "error", dotenvErr.Error())
	}

	mgr := shutdown.NewManager(log, 10*time.Second)
	ctx, cancel := mgr.Context(context.Background())

	err := run(ctx, log, mgr, os.Args[1:])
	cancel()
	mgr.Shutdown()

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.LogExit(errors.GetExitCode(err), "certsend failed", err, "code", string(errors.GetCode(err)))
	}
}

func run(ctx context.Context, log *logger.Logger, mgr *shutdown.Manager, args []string) error {
	cfg, err := config.Load("certsend", args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Fail on a bad template before touching credentials or the list.
	tpl, err := certificate.LoadTemplate(cfg.Certificate.TemplatePath)
	if err != nil {
		return err
	}
	log.Info("template loaded", "path", tpl.Path, "width", tpl.Width, "height", tpl.Height)

	renderer, err := certificate.New(certificate.Options{
		TemplatePath: cfg.Certificate.TemplatePath,
		OutputDir:    cfg.Certificate.OutputDir,
		Layout:       cfg.Certificate.Layout,
		Log:          log,
	})
	if err != nil {
		return err
	}
	mgr.Register("renderer", func(ctx context.Context) error {
		return renderer.Close()
	})

	if cfg.Run.Preview {
		b, err := batch.New(batch.Deps{Renderer: renderer, Log: log}, batch.Config{PreviewName: cfg.Run.PreviewName})
		if err != nil {
			return err
		}
		log.Info("running in preview mode, no email will be sent")
		_, err = b.Preview(ctx)
		return err
	}

	// 1. Credentials
	oauthConf, err := credentials.OAuthConfig(cfg.Google.ClientSecretsPath, cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Scopes())
	if err != nil {
		return err
	}
	creds := credentials.NewManager(oauthConf, credentials.NewStore(cfg.Google.TokenPath), log)
	creds.Interactive = cfg.Google.Interactive
	creds.Bootstrap = credentials.BootstrapOptions{Out: os.Stderr}

	httpClient, err := creds.HTTPClient(ctx)
	if err != nil {
		return err
	}

	// 2. Participants
	src, err := participants.Open(ctx, cfg.Participants, httpClient)
	if err != nil {
		return err
	}
	list, err := src.Load(ctx)
	if err != nil {
		return err
	}
	log.Info("participants loaded", "count", len(list))

	// 3. Mail
	mailer, err := mail.NewGmailClient(ctx, httpClient)
	if err != nil {
		return err
	}
	body, err := mail.LoadBody(cfg.Mail.BodyTemplatePath)
	if err != nil {
		return err
	}

	// 4. Optional archive
	deps := batch.Deps{Renderer: renderer, Mailer: mailer, Log: log}
	if cfg.Archive.Enabled() {
		provider, err := storage.NewProvider(ctx, cfg.Archive, httpClient)
		if err != nil {
			return err
		}
		deps.Archive = storage.NewArchive(provider)
		log.Info("archiving certificates", "provider", provider.Provider())
	}

	b, err := batch.New(deps, batch.Config{
		From:            cfg.Mail.From,
		Subject:         cfg.Mail.Subject,
		Body:            body,
		ContinueOnError: cfg.Run.ContinueOnError,
	})
	if err != nil {
		return err
	}

	_, err = b.Run(ctx, list)
	return err
}
