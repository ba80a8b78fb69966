package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"ui-annotator/api/internal/annotate"
	"ui-annotator/api/internal/config"
	"ui-annotator/api/internal/handle"
	"ui-annotator/api/internal/httpserver"
	"ui-annotator/api/internal/logger"
	"ui-annotator/api/internal/metrics"
	"ui-annotator/api/internal/notify"
	"ui-annotator/api/internal/pipeline"
	"ui-annotator/api/internal/render"
	"ui-annotator/api/internal/storage"
	"ui-annotator/api/internal/vision"
	"ui-annotator/api/internal/vision/gemini"
	"ui-annotator/api/internal/vision/openai"
)

const usage = `usage: annotator <command> [flags]

commands:
  serve     run the HTTP API
  run       annotate one screenshot: -image shot.png -labels labels.json
  validate  run the accuracy pass for a stored screenshot: -screenshot ID
  enrich    run the metadata pass for a stored screenshot: -screenshot ID
  purge     delete stored components older than -older`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cfg := config.Load()
	lvl, err := logger.ParseLevel(cfg.LogLevel)
	logger.Init(lvl, os.Stderr)
	if err != nil {
		logger.Warn("main", "%v; using %s", err, lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "serve":
		err = serve(ctx, cfg)
	case "run":
		err = runOnce(ctx, cfg, args, os.Stdout)
	case "validate", "enrich":
		err = review(ctx, cfg, cmd, args, os.Stdout)
	case "purge":
		err = purge(ctx, cfg, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		stop()
		os.Exit(2)
	}
	stop()
	if err != nil {
		logger.Error("main", "%s: %v", cmd, err)
		os.Exit(1)
	}
}

type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	coord   *pipeline.Coordinator
}

// newApp wires the engines into a coordinator. Stages whose engine is not
// configured stay nil and fail at call time.
func newApp(cfg *config.Config, keepOriginal bool) *app {
	engines := &vision.Engines{}
	if cfg.GeminiAPIKey != "" {
		engines.Gemini = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	if cfg.OpenAIAPIKey != "" {
		engines.OpenAI = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}
	m := metrics.New()

	coord := &pipeline.Coordinator{
		Compositor:    render.NewCompositor(cfg.BorderWidth),
		Palette:       render.NewPalette(cfg.BorderColor),
		Metrics:       m,
		ValidateLimit: cfg.ValidateConcurrency,
		EnrichLimit:   cfg.EnrichConcurrency,
		MaxSide:       cfg.LLMMaxSide,
		Timeout:       cfg.PipelineTimeout,
		KeepOriginal:  keepOriginal,
	}
	if det, err := engines.GetDetector(cfg.DetectEngine); err != nil {
		logger.Warn("main", "detection disabled: %v", err)
	} else {
		coord.Detection = pipeline.NewDetectionStage(det, cfg.DetectConcurrency, cfg.DetectRPS, m)
	}
	if v, err := engines.GetValidator(cfg.ValidateEngine); err != nil {
		logger.Warn("main", "validation disabled: %v", err)
	} else {
		coord.Validator = v
	}
	if e, err := engines.GetEnricher(cfg.EnrichEngine); err != nil {
		logger.Warn("main", "enrichment disabled: %v", err)
	} else {
		coord.Enricher = e
	}
	return &app{cfg: cfg, metrics: m, coord: coord}
}

func newFetcher(cfg *config.Config) *storage.Fetcher {
	if cfg.StorageURL == "" {
		return nil
	}
	cache := storage.NewURLCache(cfg.URLCacheSize, cfg.URLCacheTTL)
	signer := storage.NewHTTPSigner(cfg.StorageURL, cfg.StorageKey, cfg.StorageBucket)
	// signed URLs outlive their cache entries
	return storage.NewFetcher(cache, signer, cfg.URLCacheTTL+10*time.Minute)
}

func newNotifier(cfg *config.Config) *notify.Telegram {
	if cfg.TelegramBotToken == "" || cfg.TelegramChatID == 0 {
		return nil
	}
	tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
	if err != nil {
		logger.Warn("main", "telegram disabled: %v", err)
		return nil
	}
	return tg
}

func serve(ctx context.Context, cfg *config.Config) error {
	a := newApp(cfg, true)
	if a.coord.Detection == nil {
		return errors.New("no detector configured")
	}

	var opts []handle.Option
	checks := map[string]httpserver.Check{}
	if dsn := resolveDSN(cfg.DatabaseURL); dsn != "" {
		repo, db, err := openRepo(ctx, dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, handle.WithRepo(repo))
		checks["db"] = db.PingContext
		if cfg.Retention > 0 {
			go purgeLoop(ctx, repo, cfg.Retention, time.Hour)
		}
	} else {
		logger.Warn("main", "no database configured; results are not stored")
	}
	if f := newFetcher(cfg); f != nil {
		opts = append(opts, handle.WithFetcher(f))
	}
	if tg := newNotifier(cfg); tg != nil {
		opts = append(opts, handle.WithNotifier(tg))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Health(checks))
	mux.Handle("/metrics", a.metrics.Handler())
	handle.New(a.coord, opts...).Routes(mux)

	return httpserver.Serve(ctx, "0.0.0.0:"+cfg.Port, mux)
}

func runOnce(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	imagePath := fs.String("image", "", "screenshot file")
	labelsPath := fs.String("labels", "", "JSON object of label -> description")
	id := fs.String("id", "", "screenshot id (default: random)")
	outDir := fs.String("out", "", "directory for annotated PNGs")
	save := fs.Bool("save", false, "store the result in the database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *imagePath == "" || *labelsPath == "" {
		return errors.New("-image and -labels are required")
	}
	img, err := os.ReadFile(*imagePath)
	if err != nil {
		return err
	}
	labels, err := readLabels(*labelsPath)
	if err != nil {
		return err
	}
	if *id == "" {
		*id = uuid.NewString()
	}

	a := newApp(cfg, *save)
	if a.coord.Detection == nil {
		return errors.New("no detector configured")
	}
	comps, err := a.coord.Annotate(ctx, pipeline.Job{ScreenshotID: *id, Image: img, Labels: labels})
	if err != nil {
		return err
	}
	if len(comps) == 0 {
		logger.Warn("main", "%s produced no components", *imagePath)
	}

	if *save && len(comps) > 0 {
		dsn := resolveDSN(cfg.DatabaseURL)
		if dsn == "" {
			return errors.New("-save needs DATABASE_URL")
		}
		repo, db, err := openRepo(ctx, dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := repo.SaveAll(ctx, comps); err != nil {
			return err
		}
	}
	if *outDir != "" {
		if err := writeImages(*outDir, comps); err != nil {
			return err
		}
	}
	if tg := newNotifier(cfg); tg != nil && len(comps) > 0 {
		if err := tg.AnnotationDone(*id, comps); err != nil {
			logger.Warn("main", "notify: %v", err)
		}
	}
	return printJSON(stdout, map[string]any{"screenshot_id": *id, "components": annotate.WithoutImages(comps)})
}

func review(ctx context.Context, cfg *config.Config, cmd string, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	id := fs.String("screenshot", "", "stored screenshot id")
	imagePath := fs.String("image", "", "unannotated screenshot (enrich; default: stored original)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("-screenshot is required")
	}
	dsn := resolveDSN(cfg.DatabaseURL)
	if dsn == "" {
		return errors.New(cmd + " needs DATABASE_URL")
	}
	repo, db, err := openRepo(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	comps, err := repo.FindByScreenshot(ctx, *id, true)
	if err != nil {
		return err
	}
	if len(comps) == 0 {
		return fmt.Errorf("no components stored for %s", *id)
	}

	a := newApp(cfg, false)
	var outcomes []pipeline.MergeOutcome
	if cmd == "validate" {
		outcomes = a.coord.Validate(ctx, comps)
	} else {
		base, err := enrichBase(*imagePath, comps)
		if err != nil {
			return err
		}
		outcomes = a.coord.Enrich(ctx, base, comps)
	}

	var saveErrs []error
	for i, o := range outcomes {
		if o.Err != nil {
			continue
		}
		if err := repo.UpdateMerged(ctx, &comps[i]); err != nil {
			saveErrs = append(saveErrs, err)
		}
	}
	if err := errors.Join(saveErrs...); err != nil {
		return err
	}
	if tg := newNotifier(cfg); tg != nil && cmd == "validate" {
		if err := tg.ValidationDone(*id, comps, outcomes); err != nil {
			logger.Warn("main", "notify: %v", err)
		}
	}
	return printJSON(stdout, map[string]any{"screenshot_id": *id, "outcomes": outcomes})
}

func purge(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	def := cfg.Retention
	if def <= 0 {
		def = 30 * 24 * time.Hour
	}
	older := fs.Duration("older", def, "age of components to delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dsn := resolveDSN(cfg.DatabaseURL)
	if dsn == "" {
		return errors.New("purge needs DATABASE_URL")
	}
	repo, db, err := openRepo(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	n, err := repo.PurgeOlderThan(ctx, *older)
	if err != nil {
		return err
	}
	logger.Info("main", "purged %d components older than %s", n, *older)
	return nil
}

func enrichBase(path string, comps []annotate.ComponentDetectionResult) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	for _, c := range comps {
		if len(c.OriginalImage) > 0 {
			return c.OriginalImage, nil
		}
	}
	return nil, errors.New("no original image stored; pass -image")
}

func readLabels(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var labels map[string]string
	if err := json.Unmarshal(b, &labels); err != nil {
		return nil, fmt.Errorf("labels %s: %w", path, err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels %s: empty", path)
	}
	return labels, nil
}

func writeImages(dir string, comps []annotate.ComponentDetectionResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, c := range comps {
		if len(c.AnnotatedImage) == 0 {
			continue
		}
		p := filepath.Join(dir, fileName(c.ComponentName)+".png")
		if err := os.WriteFile(p, c.AnnotatedImage, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func fileName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(s))
	if s == "" {
		return "component"
	}
	return s
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
