package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/oldtownbooks/epubcover/internal/bot"
	"github.com/oldtownbooks/epubcover/internal/config"
	"github.com/oldtownbooks/epubcover/internal/converter"
	"github.com/oldtownbooks/epubcover/internal/epub"
)

const (
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
	defaultThumbnailPath = "thumbnail_preview.jpg"
)

type cliOptions struct {
	Config *config.Config
	Logger *slog.Logger
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"cover":      "cover.path",
	"quality":    "cover.quality",
	"max-width":  "cover.max_width",
	"max-height": "cover.max_height",
	"suffix":     "bot.filename_suffix",
	"log-level":  "log.level",
	"log-format": "log.format",
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "epubcover",
		Short: "Stamp the library cover onto EPUB files",
		Long: `epubcover replaces the cover of EPUB books with a fixed library image
and attaches a small JPEG thumbnail to every delivered file.

It runs as a Telegram webhook bot (serve) or on local files.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Config file (default: ./config.yml if present)")
	flags.String("cover", "thumbnail.jpg", "Cover source image")
	flags.Int("quality", converter.DefaultThumbnailQuality, "Thumbnail JPEG quality (1-100)")
	flags.Int("max-width", converter.DefaultThumbnailWidth, "Thumbnail maximum width in pixels")
	flags.Int("max-height", converter.DefaultThumbnailHeight, "Thumbnail maximum height in pixels")
	flags.String("suffix", converter.DefaultFilenameSuffix, "Suffix added to delivered file names")
	flags.String("log-level", defaultLogLevel, "Log level (debug|info|warn|error)")
	flags.String("log-format", defaultLogFormat, "Log format (text|json)")
	flags.BoolP("verbose", "v", false, "Enable debug logging (overrides --log-level)")

	root.AddCommand(newServeCmd(), newRewriteCmd(), newThumbnailCmd(), newInspectCmd())
	return root
}

func readCLIOptions(cmd *cobra.Command) (*cliOptions, error) {
	flags := cmd.Flags()
	if err := validateFlags(flags); err != nil {
		return nil, err
	}

	v := config.New()
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind --%s: %w", name, err)
			}
		}
	}

	configPath, _ := flags.GetString("config")
	cfg, err := config.Read(v, configPath)
	if err != nil {
		return nil, err
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cliOptions{
		Config: cfg,
		Logger: buildLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format),
	}, nil
}

// validateFlags reports bad flag values by flag name before they are merged
// with the config file.
func validateFlags(flags *pflag.FlagSet) error {
	if flags.Changed("quality") {
		if q, _ := flags.GetInt("quality"); q < 1 || q > 100 {
			return fmt.Errorf("--quality must be between 1 and 100, got %d", q)
		}
	}
	for _, name := range []string{"max-width", "max-height"} {
		if flags.Changed(name) {
			if n, _ := flags.GetInt(name); n < 1 {
				return fmt.Errorf("--%s must be positive, got %d", name, n)
			}
		}
	}
	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		if _, ok := parseLogLevel(level); !ok {
			return fmt.Errorf("--log-level must be one of debug|info|warn|error, got %q", level)
		}
	}
	if flags.Changed("log-format") {
		format, _ := flags.GetString("log-format")
		switch strings.ToLower(format) {
		case "text", "json":
		default:
			return fmt.Errorf("--log-format must be one of text|json, got %q", format)
		}
	}
	return nil
}

func parseLogLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func buildLogger(w io.Writer, level, format string) *slog.Logger {
	lvl, _ := parseLogLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func defaultOutputPath(inputPath, suffix string) string {
	return converter.RenameWithSuffix(inputPath, suffix)
}

func newPipeline(opts *cliOptions) *converter.Pipeline {
	cfg := opts.Config
	return converter.NewPipeline(converter.PipelineOptions{
		Thumbnail: converter.ThumbnailOptions{
			Path:      cfg.Cover.Path,
			MaxWidth:  cfg.Cover.MaxWidth,
			MaxHeight: cfg.Cover.MaxHeight,
			Quality:   cfg.Cover.Quality,
		},
		FilenameSuffix: cfg.Bot.FilenameSuffix,
		Logger:         opts.Logger,
	})
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram webhook bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			cfg, logger := opts.Config, opts.Logger

			if err := cfg.ValidateBot(); err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Cover.Path); err != nil {
				return fmt.Errorf("cover image %s: %w", cfg.Cover.Path, err)
			}

			messenger, err := bot.NewTelegramMessenger(cfg.Bot.Token, cfg.Bot.MaxFileSize, logger)
			if err != nil {
				return err
			}
			logger.Info("authorized", "bot", messenger.BotName())

			handler := bot.NewHandler(bot.HandlerOptions{
				Messenger:     messenger,
				Processor:     newPipeline(opts),
				Captions:      cfg.Bot.Captions,
				MaxFileSize:   cfg.Bot.MaxFileSize,
				MaxConcurrent: cfg.Bot.MaxConcurrent,
				Logger:        logger,
			})
			server := bot.NewServer(handler, cfg.Bot.WebhookPath(), logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Run(gctx, cfg.Bot.Addr())
			})
			g.Go(func() error {
				if err := messenger.RegisterWebhook(cfg.Bot.WebhookURL()); err != nil {
					return err
				}
				logger.Info("webhook registered", "base_url", cfg.Bot.BaseURL)
				return nil
			})
			return g.Wait()
		},
	}
}

func newRewriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewrite <input.epub>",
		Short: "Replace the cover of a local EPUB file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			inputPath := args[0]
			if !converter.IsEPUB(inputPath) {
				return fmt.Errorf("%s is not an .epub file", inputPath)
			}
			outputPath, _ := cmd.Flags().GetString("output")
			if outputPath == "" {
				outputPath = defaultOutputPath(inputPath, opts.Config.Bot.FilenameSuffix)
			}

			data, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			opts.Logger.Info("rewriting cover", "input", inputPath, "output", outputPath)
			d := newPipeline(opts).Process(converter.Upload{Name: filepath.Base(inputPath), Data: data})
			if d.Status != converter.StatusComplete {
				return fmt.Errorf("rewrite failed (%s): %w", d.Status, d.Err)
			}

			if err := os.WriteFile(outputPath, d.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			opts.Logger.Info("done", "output", outputPath, "size", len(d.Data))
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file path (default: input name with suffix)")
	return cmd
}

func newThumbnailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thumbnail",
		Short: "Write the cover thumbnail that gets attached to deliveries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			cfg := opts.Config
			outputPath, _ := cmd.Flags().GetString("output")

			thumb, err := converter.NewThumbnailBuilder(converter.ThumbnailOptions{
				Path:      cfg.Cover.Path,
				MaxWidth:  cfg.Cover.MaxWidth,
				MaxHeight: cfg.Cover.MaxHeight,
				Quality:   cfg.Cover.Quality,
			}).Build()
			if err != nil {
				return err
			}
			if err := os.WriteFile(outputPath, thumb, 0o644); err != nil {
				return fmt.Errorf("failed to write thumbnail: %w", err)
			}
			opts.Logger.Info("thumbnail written", "output", outputPath, "size", len(thumb))
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", defaultThumbnailPath, "Output file path")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.epub>",
		Short: "Print the package structure of an EPUB file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := readCLIOptions(cmd); err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			book, err := epub.Parse(data)
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}
			printBook(cmd.OutOrStdout(), book)
			return nil
		},
	}
}

func printBook(w io.Writer, book *epub.Book) {
	title, _ := book.Title()
	id, _ := book.Identifier()
	fmt.Fprintf(w, "Package:    %s (version %s)\n", book.PackagePath, book.Version)
	fmt.Fprintf(w, "Title:      %s\n", title)
	fmt.Fprintf(w, "Identifier: %s\n", id)
	fmt.Fprintf(w, "Language:   %s\n", book.Language())
	if cover := book.DetectCover(); cover != nil {
		fmt.Fprintf(w, "Cover:      %s (%s, via %s)\n", cover.Item.Href, cover.Item.ID, cover.DetectionMethod)
	} else {
		fmt.Fprintln(w, "Cover:      none")
	}

	fmt.Fprintf(w, "\nManifest (%d items):\n", len(book.Items))
	for _, it := range book.Items {
		fmt.Fprintf(w, "  %-20s %-10s %-28s %s", it.ID, it.Kind, it.MediaType, it.Href)
		if len(it.Properties) > 0 {
			fmt.Fprintf(w, " [%s]", strings.Join(it.Properties, " "))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\nSpine (%d):\n", len(book.Spine))
	for i, ref := range book.Spine {
		linear := ""
		if !ref.Linear {
			linear = " (non-linear)"
		}
		fmt.Fprintf(w, "  %2d. %s%s\n", i+1, ref.IDRef, linear)
	}

	fmt.Fprintln(w, "\nTOC:")
	printTOC(w, book.TOC, 1)

	if len(book.Guide) > 0 {
		fmt.Fprintln(w, "\nGuide:")
		for _, ref := range book.Guide {
			fmt.Fprintf(w, "  %-12s %s\n", ref.Type, ref.Href)
		}
	}
}

func printTOC(w io.Writer, entries []epub.TOCEntry, depth int) {
	for _, e := range entries {
		fmt.Fprintf(w, "%s- %s -> %s\n", strings.Repeat("  ", depth), e.Title, e.Href)
		printTOC(w, e.Children, depth+1)
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
