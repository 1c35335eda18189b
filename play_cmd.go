package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/dgnsrekt/promptdj/internal/audio"
	"github.com/dgnsrekt/promptdj/internal/config"
	"github.com/dgnsrekt/promptdj/internal/lyria"
	"github.com/dgnsrekt/promptdj/internal/metrics"
	"github.com/dgnsrekt/promptdj/internal/pcm"
	"github.com/dgnsrekt/promptdj/internal/presets"
	"github.com/dgnsrekt/promptdj/internal/session"
	"github.com/dgnsrekt/promptdj/ui"
)

var playCmd = &cobra.Command{
	Use:     "play",
	Short:   "Start a music session",
	Long:    paragraph(fmt.Sprintf("\n%s a music session. Runs the terminal UI when attached to a terminal, otherwise plays headless until interrupted.", keyword("Start"))),
	Example: paragraph("promptdj play\npromptdj play --presets ~/jam.yml --no-tui"),
	Args:    cobra.NoArgs,
	RunE:    executePlay,
}

func executePlay(cmd *cobra.Command, _ []string) error {
	headless := noTUI || !term.IsTerminal(int(os.Stdout.Fd()))
	if err := setupLog(headless); err != nil {
		return fmt.Errorf("unable to set up logging: %w", err)
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}

	prompts, err := loadPresets(cfg.Presets)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	device, err := audio.Open(audio.OutputConfig{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		BitDepth:   pcm.BitDepth,
		BufferSize: audio.DefaultOutputConfig().BufferSize,
	}, audio.KindAuto)
	if err != nil {
		return fmt.Errorf("unable to open audio device: %w", err)
	}
	defer func() { _ = device.Close() }()

	recorder, provider, err := setupMetrics(ctx, device)
	if err != nil {
		return err
	}
	defer func() { _ = recorder.Close() }()

	var minter lyria.Minter = lyria.StaticKey(secrets.APIKey())
	if cfg.EphemeralTokens {
		minter = lyria.NewEphemeralMinter(secrets.APIKey(), cfg.APIVersion, cfg.TokenTTL)
	}
	dialer := lyria.NewDialer(minter,
		lyria.WithEndpoint(cfg.Endpoint),
		lyria.WithAPIVersion(cfg.APIVersion),
		lyria.WithModel(cfg.Model),
	)

	var bridge *ui.Bridge
	var listener session.Listener
	if headless {
		listener = headlessListener()
	} else {
		bridge = ui.NewBridge(256)
		listener = bridge
	}

	mgr, err := session.New(session.Options{
		Dialer:         session.LyriaDialer(dialer),
		Output:         device,
		Listener:       listener,
		Format:         pcm.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels},
		BufferTime:     cfg.BufferTime,
		FadeTime:       cfg.FadeTime,
		PromptThrottle: cfg.PromptThrottle,
		ConnectTimeout: cfg.ConnectTimeout,
		MusicConfig:    cfg.Music.Generation(),
		Metrics:        recorder,
	})
	if err != nil {
		return err
	}
	mgr.SetWeightedPrompts(presets.Snapshot(prompts))

	if headless {
		return runHeadless(ctx, mgr, provider)
	}
	return runTUI(ctx, mgr, bridge, device, provider, prompts)
}

func runHeadless(ctx context.Context, mgr *session.Manager, provider *metrics.Provider) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(ctx) })
	startSupport(ctx, g, provider, func(p []presets.Preset) {
		mgr.SetWeightedPrompts(presets.Snapshot(p))
	})

	log.Info("Playing headless, press ctrl+c to stop")
	mgr.Play()
	return g.Wait()
}

func runTUI(ctx context.Context, mgr *session.Manager, bridge *ui.Bridge, device audio.Device, provider *metrics.Provider, prompts []presets.Preset) error {
	uiCfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	uiCfg.Prompts = prompts
	uiCfg.Level = device.Level
	uiCfg.Autoplay = cfg.Autoplay

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := ui.NewProgram(uiCfg, mgr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(ctx) })
	g.Go(func() error {
		bridge.Attach(ctx, p)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		p.Quit()
		return nil
	})
	startSupport(ctx, g, provider, func(ps []presets.Preset) {
		p.Send(ui.PresetsMsg{Prompts: ps})
	})

	g.Go(func() error {
		defer cancel()
		if _, err := p.Run(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("unable to run tui program: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// startSupport runs the metrics endpoint and the presets watcher when
// they are configured.
func startSupport(ctx context.Context, g *errgroup.Group, provider *metrics.Provider, onReload func([]presets.Preset)) {
	if provider != nil {
		g.Go(func() error {
			defer func() { _ = shutdownProvider(provider) }()
			return metrics.Serve(ctx, cfg.Metrics.Listen, provider.Handler)
		})
	}
	if cfg.Presets != "" {
		g.Go(func() error {
			return presets.Watch(ctx, cfg.Presets, onReload)
		})
	}
}

func setupMetrics(ctx context.Context, device audio.Device) (*metrics.Recorder, *metrics.Provider, error) {
	if cfg.Metrics.Listen == "" {
		return nil, nil, nil
	}
	provider, err := metrics.NewProvider(ctx, "promptdj", Version)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to set up metrics: %w", err)
	}
	recorder, err := metrics.NewRecorder(provider)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to set up metrics: %w", err)
	}
	if err := recorder.ObserveLevel(provider, device.Level); err != nil {
		return nil, nil, fmt.Errorf("unable to set up metrics: %w", err)
	}
	return recorder, provider, nil
}

func shutdownProvider(p *metrics.Provider) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return p.Shutdown(ctx)
}

func headlessListener() session.Listener {
	logger := log.Default().WithPrefix("promptdj")
	return session.ListenerFuncs{
		OnStateChanged: func(s session.State) {
			logger.Info("Playback state changed", "state", s)
		},
		OnError: func(err error) {
			var serr *session.Error
			if errors.As(err, &serr) {
				logger.Error(serr.Error(), "kind", serr.Kind, "detail", serr.Detail())
				return
			}
			logger.Error("Session error", "error", err)
		},
		OnPromptFiltered: func(p session.FilteredPrompt) {
			logger.Warn("Prompt filtered", "text", p.Text, "reason", p.Reason)
		},
	}
}

func loadPresets(path string) ([]presets.Preset, error) {
	if path == "" {
		return presets.Defaults(), nil
	}
	p, err := presets.Load(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load presets: %w", err)
	}
	return p, nil
}
