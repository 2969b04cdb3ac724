package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"imageprompt/internal/domain"
	"imageprompt/internal/i18n"
	"imageprompt/internal/progress"
	"imageprompt/internal/submission"
)

const barWidth = 30

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type cliOptions struct {
	file    string
	kind    string
	query   string
	server  string
	locale  string
	timeout time.Duration
	verbose bool
}

func parseFlags(args []string, stderr io.Writer) (cliOptions, error) {
	var o cliOptions
	fs := flag.NewFlagSet("img2prompt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.file, "file", "", "image to describe, "+i18n.T(i18n.English, i18n.MsgUploadHint))
	fs.StringVar(&o.kind, "type", string(domain.PromptTypeMidjourney), "prompt type: general, flux, midjourney or stable")
	fs.StringVar(&o.query, "query", "", "instruction sent with the image")
	fs.StringVar(&o.server, "server", envOr("IMAGEPROMPT_SERVER", "http://localhost:8080"), "image-to-prompt server base url")
	fs.StringVar(&o.locale, "locale", envOr("IMAGEPROMPT_LOCALE", i18n.English), "message language: en or zh")
	fs.DurationVar(&o.timeout, "timeout", 3*time.Minute, "overall request timeout")
	fs.BoolVar(&o.verbose, "v", false, "log diagnostics to stderr")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if strings.TrimSpace(o.file) == "" {
		return o, errors.New("-file is required")
	}
	return o, nil
}

// run returns the process exit code: 0 on success, 1 on a failed generation,
// 2 on usage errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "img2prompt: %v\n", err)
		}
		return 2
	}
	promptType, err := domain.ParsePromptType(opts.kind)
	if err != nil {
		fmt.Fprintf(stderr, "img2prompt: %v (want one of %v)\n", err, domain.PromptTypes())
		return 2
	}
	locale, ok := i18n.Normalize(opts.locale)
	if !ok {
		locale = i18n.English
	}

	level := zerolog.WarnLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}).Level(level).With().Timestamp().Logger()

	data, err := os.ReadFile(opts.file)
	if err != nil {
		fmt.Fprintf(stderr, "img2prompt: %v\n", err)
		return 2
	}

	bar := &barRenderer{out: stderr, last: -1}
	anim := progress.NewAnimator(bar.render)
	handle := anim.Start(progress.NewTicker(progress.FrameInterval))
	defer handle.Stop()

	ctrl := submission.NewController(submission.Options{
		Transport:  submission.NewHTTPTransport(opts.server, &http.Client{Timeout: opts.timeout}),
		Progress:   anim,
		Logger:     &logger,
		Locale:     locale,
		PromptType: promptType,
		UserQuery:  opts.query,
	})

	preview, err := ctrl.SelectFile(filepath.Base(opts.file), mime.TypeByExtension(filepath.Ext(opts.file)), data)
	if err != nil {
		fmt.Fprintf(stderr, "img2prompt: %v\n", err)
		return 1
	}
	fmt.Fprintf(stderr, "%s  %s  %s", preview.Filename, preview.MediaType, humanBytes(preview.Size))
	if preview.Width > 0 {
		fmt.Fprintf(stderr, "  %dx%d", preview.Width, preview.Height)
	}
	fmt.Fprintf(stderr, "  [%s]\n", promptType.Label())

	result, genErr := ctrl.Generate(ctx)
	waitSettled(anim, 2*time.Second)
	handle.Stop()
	bar.finish()

	if genErr != nil {
		fmt.Fprintln(stderr, genErr.Error())
		return 1
	}
	if result.Degraded {
		fmt.Fprintln(stderr, i18n.T(locale, i18n.MsgPromptFallback))
	}
	fmt.Fprintln(stdout, result.PromptText)
	if result.FileID != nil {
		fmt.Fprintf(stderr, "fileId: %s\n", *result.FileID)
	}
	return 0
}

// waitSettled lets the bar catch up with the final target before the loop is stopped.
func waitSettled(anim *progress.Animator, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for !anim.Settled() && time.Now().Before(deadline) {
		time.Sleep(progress.FrameInterval)
	}
}

type barRenderer struct {
	mu   sync.Mutex
	out  io.Writer
	last int
}

func (b *barRenderer) render(f progress.Frame) {
	pct := f.Percent()
	b.mu.Lock()
	defer b.mu.Unlock()
	if pct == b.last {
		return
	}
	b.last = pct
	filled := pct * barWidth / 100
	fmt.Fprintf(b.out, "\r[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled), pct)
}

func (b *barRenderer) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last >= 0 {
		fmt.Fprintln(b.out)
	}
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
