// Command phonomatch recognises spoken-style commands against intent
// grammars, tolerating the phonetic errors of speech recognition.
//
// Run "phonomatch serve" to start the HTTP API, or use the recognize, eval,
// lint, transliterate and mcp subcommands against the same configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/phonomatch/internal/app"
	"github.com/MrWong99/phonomatch/internal/config"
	"github.com/MrWong99/phonomatch/pkg/g2p"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "phonomatch: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by all subcommands.
type rootOptions struct {
	configPath string
	format     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "phonomatch",
		Short:         "Phonetic fuzzy intent matching",
		Long:          "Match transcribed speech against intent grammars, forgiving the phoneme errors speech recognition makes.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("--format must be text or json, got %q", opts.format)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVarP(&opts.format, "format", "f", "text", "output format: text or json")

	root.AddCommand(
		newServeCmd(opts),
		newRecognizeCmd(opts),
		newEvalCmd(opts),
		newLintCmd(opts),
		newTransliterateCmd(opts),
		newMCPCmd(opts),
	)
	return root
}

// loadConfig reads the config file and installs a logger for it. The
// returned level can be changed at runtime.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, *slog.LevelVar, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", opts.configPath)
		}
		return nil, nil, err
	}

	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), level, cfg.Server.LogFormat))
	return cfg, level, nil
}

// newApp loads the config and builds the application around it.
func newApp(cmd *cobra.Command, opts *rootOptions, appOpts ...app.Option) (*app.App, *config.Config, error) {
	cfg, level, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, nil, err
	}
	reg := config.NewRegistry()
	registerBuiltinTransliterators(reg, cfg)

	a, err := app.New(cmd.Context(), cfg, reg, append([]app.Option{app.WithLevelVar(level)}, appOpts...)...)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

// ── Transliterators ───────────────────────────────────────────────────────────

// registerBuiltinTransliterators wires the transliterators that ship with
// phonomatch into reg. Relative paths in their options resolve against the
// config file's directory.
func registerBuiltinTransliterators(reg *config.Registry, cfg *config.Config) {
	reg.Register("identity", func(config.ProviderEntry) (g2p.Transliterator, error) {
		return g2p.Identity{}, nil
	})

	reg.Register("lexicon", func(entry config.ProviderEntry) (g2p.Transliterator, error) {
		path := entry.StringOption("path")
		if path == "" {
			return nil, errors.New("lexicon needs options.path")
		}
		// Words missing from the lexicon are passed through Identity.
		return g2p.LoadLexiconFile(cfg.ResolvePath(path), nil)
	})

	reg.Register("espeak", func(entry config.ProviderEntry) (g2p.Transliterator, error) {
		var opts []g2p.EspeakOption
		if bin := entry.StringOption("binary"); bin != "" {
			opts = append(opts, g2p.WithEspeakBinary(bin))
		}
		voice := entry.StringOption("voice")
		if voice == "" {
			voice = g2p.EspeakVoice(entry.Language)
		}
		return g2p.NewEspeak(voice, opts...)
	})

	slog.Debug("registered transliterators", "names", reg.Names())
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, level *slog.LevelVar, format config.LogFormat) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}
