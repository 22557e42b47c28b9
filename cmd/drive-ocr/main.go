package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"drive-ocr/internal/auth"
	"drive-ocr/internal/config"
	"drive-ocr/internal/document"
	"drive-ocr/internal/metrics"
	"drive-ocr/internal/normalize"
	"drive-ocr/internal/notify"
	"drive-ocr/internal/ocr"
	"drive-ocr/internal/ocr/gemini"
	"drive-ocr/internal/ocr/vision"
	"drive-ocr/internal/pipeline"
	"drive-ocr/internal/storage"
	"drive-ocr/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("WARN .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	creds, err := auth.Obtain(ctx, cfg.CredentialsFile)
	if err != nil {
		log.Fatal(err)
	}
	opts := auth.ClientOptions(creds)
	log.Printf("✓ credentials loaded (project %q)", creds.ProjectID)

	drv, err := storage.New(ctx, opts...)
	if err != nil {
		log.Fatal(err)
	}
	placement, err := document.ParsePlacement(cfg.InsertPlacement)
	if err != nil {
		log.Fatal(err)
	}
	docs, err := document.New(ctx, placement, cfg.DocRevisionCheck, opts...)
	if err != nil {
		log.Fatal(err)
	}
	vis, err := vision.New(ctx, cfg.OCRFeature, cfg.OCRLangs, opts...)
	if err != nil {
		log.Fatal(err)
	}

	engines := &ocr.Engines{Vision: vis}
	if cfg.GeminiAPIKey != "" {
		engines.Gemini = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	text, err := engines.GetEngine(cfg.RecognitionEngine)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("recognition engine: %s", text.Name())

	ledger, closeLedger, err := openLedger(ctx, cfg, drv)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLedger()

	rec := metrics.New()
	deps := pipeline.Deps{
		Source:     drv,
		Files:      drv,
		Normalizer: normalize.New(normalize.WithMaxDimension(cfg.MaxDimension)),
		Text:       text,
		Objects:    vis,
		Docs:       docs,
		Ledger:     ledger,
		Metrics:    rec,
	}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("WARN notifier disabled: %v", err)
		} else {
			deps.Notifier = tg
		}
	}

	p, err := pipeline.New(deps, pipeline.Options{
		SourceFolderID: cfg.SourceFolderID,
		DoneFolderID:   cfg.DoneFolderID,
		TargetDocID:    cfg.TargetDocID,
		MaxFiles:       cfg.MaxFiles,
		PerFile:        cfg.OutputMode == config.ModePerFile,
		DetectObjects:  cfg.DetectObjects,
		Publish:        cfg.PublishLinks,
		Convert:        cfg.ConvertImages,
	})
	if err != nil {
		log.Fatal(err)
	}

	outcomes, runErr := p.Run(ctx)

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := rec.Push(pushCtx, cfg.PushgatewayURL); err != nil {
			log.Printf("WARN %v", err)
		}
		cancel()
	}
	if runErr != nil {
		closeLedger()
		log.Fatal(runErr)
	}

	if cfg.OutputMode == config.ModeShared {
		log.Printf("results in %s", document.URL(cfg.TargetDocID))
	}
	log.Printf("✓ done: %d files handled", len(outcomes))
}

func openLedger(ctx context.Context, cfg *config.Config, drv *storage.Drive) (pipeline.Ledger, func(), error) {
	noop := func() {}
	switch cfg.Ledger {
	case config.LedgerDrive:
		return storage.NewMarkerLedger(drv), noop, nil
	case config.LedgerPostgres:
		l, err := store.OpenPostgres(ctx, cfg.LedgerDSN)
		if err != nil {
			return nil, noop, err
		}
		return l, func() { l.Close() }, nil
	case config.LedgerSQLite:
		l, err := store.OpenSQLite(ctx, cfg.LedgerDSN)
		if err != nil {
			return nil, noop, err
		}
		return l, func() { l.Close() }, nil
	}
	return nil, noop, nil
}
