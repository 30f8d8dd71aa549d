// Package main provides the readflow CLI: chunked TTS playback of a saved
// reading queue, with offline caching.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/marqueymarc/readflow/internal/cache"
	"github.com/marqueymarc/readflow/internal/chunker"
	"github.com/marqueymarc/readflow/internal/config"
	"github.com/marqueymarc/readflow/internal/download"
	"github.com/marqueymarc/readflow/internal/durations"
	"github.com/marqueymarc/readflow/internal/feed"
	"github.com/marqueymarc/readflow/internal/fetch"
	"github.com/marqueymarc/readflow/internal/kv"
	"github.com/marqueymarc/readflow/internal/player"
	"github.com/marqueymarc/readflow/internal/resume"
	"github.com/marqueymarc/readflow/internal/synth"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	voiceFlag   string
	mockFlag    bool
	silentAudio bool

	rootCmd = &cobra.Command{
		Use:           "readflow",
		Short:         "Listen to your read-later queue",
		Long:          "\nPlay text-to-speech renditions of saved articles, chunk by chunk,\nwith resumable positions and offline caching.",
		SilenceErrors: false,
		SilenceUsage:  true,
	}

	listenCmd = &cobra.Command{
		Use:   "listen FEED",
		Short: "Play the queue from a JSON feed snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runListen,
	}

	downloadCmd = &cobra.Command{
		Use:   "download FEED",
		Short: "Download every item in a feed snapshot for offline listening",
		Args:  cobra.ExactArgs(1),
		RunE:  runDownload,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./.readflow/readflow.yml, then user config)")
	rootCmd.PersistentFlags().StringVar(&voiceFlag, "voice", "", "synthesis voice override")
	rootCmd.PersistentFlags().BoolVar(&mockFlag, "mock", false, "use the local mock synthesizer")
	listenCmd.Flags().BoolVar(&silentAudio, "silent", false, "advance playback without audio output")

	rootCmd.AddCommand(listenCmd, downloadCmd, configCmd)

	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
}

// loadSettings resolves the config file, loads it, and applies CLI flag
// overrides.
func loadSettings(cmd *cobra.Command) (config.Settings, string, error) {
	path, err := config.FindConfigFile(configFile)
	if err != nil {
		return config.Settings{}, "", err
	}
	settings, err := config.Load(path)
	if err != nil {
		return settings, path, err
	}

	if cmd.Root().PersistentFlags().Changed("voice") {
		settings.Voice = voiceFlag
	}
	if cmd.Root().PersistentFlags().Changed("mock") {
		settings.Mock = mockFlag
	}

	if lvl, err := log.ParseLevel(settings.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	return settings, path, nil
}

// engine bundles the shared playback plumbing behind one mutable settings
// view, so config hot-reloads can swap voice and mock mode while running.
type engine struct {
	mu       sync.Mutex
	settings config.Settings

	kv        kv.Store
	cache     *cache.Store
	chunks    *chunker.Cache
	fetcher   *fetch.Fetcher
	durations *durations.Model
	saver     *resume.Saver
	queue     *download.Queue
}

func buildEngine(settings config.Settings, progress func(download.Progress), done func(string), failure func(string, error)) (*engine, error) {
	dataDir := settings.DataDir
	if dataDir == "" {
		var err error
		dataDir, err = config.DefaultDataDir()
		if err != nil {
			return nil, err
		}
	}

	store, err := kv.NewDiskStore(dataDir, settings.CacheLimitBytes)
	if err != nil {
		return nil, fmt.Errorf("open audio cache: %w", err)
	}

	e := &engine{
		settings:  settings,
		kv:        store,
		cache:     cache.NewStore(store),
		chunks:    chunker.NewCache(settings.ChunkLimits()),
		durations: durations.NewModel(),
		saver:     resume.NewSaver(store, settings.ResumeDebounce),
	}
	e.fetcher = fetch.NewFetcher(e.cache, e.synthesizer())
	e.queue = download.NewQueue(download.Config{
		Fetcher:    e.fetcher,
		Cache:      e.cache,
		Chunks:     e.chunks,
		ProfileFor: e.profileFor,
		OnProgress: progress,
		OnDone:     done,
		OnError:    failure,
	})
	return e, nil
}

// synthesizer picks the backend from settings. With no synthesis URL the
// local mock is the only option.
func (e *engine) synthesizer() synth.Synthesizer {
	if e.settings.Mock || e.settings.SynthesisURL == "" {
		if !e.settings.Mock {
			log.Warn("no synthesis_url configured, using mock synthesis")
		}
		return synth.NewMockSynthesizer()
	}
	return synth.NewHTTPSynthesizer(e.settings.SynthesisURL, 2)
}

// profileFor binds an item to the currently configured voice and mode.
func (e *engine) profileFor(itemID string) cache.Profile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cache.Profile{ItemID: itemID, Voice: e.settings.Voice, Mock: e.settings.Mock}
}

// applySettings takes over the hot-reloadable settings from a fresh config.
func (e *engine) applySettings(s config.Settings) {
	e.mu.Lock()
	if s.Voice != e.settings.Voice || s.Mock != e.settings.Mock {
		log.Info("synthesis profile changed", "voice", s.Voice, "mock", s.Mock)
	}
	e.settings.Voice = s.Voice
	e.settings.Mock = s.Mock
	e.settings.Rate = s.Rate
	e.mu.Unlock()
}

func (e *engine) close() {
	e.queue.Close()
	if err := e.saver.Close(); err != nil {
		log.Warn("flush resume state failed", "error", err)
	}
	if err := e.kv.Close(); err != nil {
		log.Warn("close audio cache failed", "error", err)
	}
}

func runListen(cmd *cobra.Command, args []string) error {
	settings, path, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	items, err := feed.LoadFile(args[0])
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("feed %s holds no items", args[0])
	}

	e, err := buildEngine(settings,
		func(p download.Progress) {
			log.Debug("download progress", "item", p.ItemID, "percent", int(p.Percent))
		},
		nil,
		func(itemID string, err error) {
			log.Error("download failed", "item", itemID, "error", player.Normalize(err))
		})
	if err != nil {
		return err
	}
	defer e.close()

	var device player.Device
	if silentAudio {
		device = player.NewSilentDevice()
	} else {
		device = player.NewOtoDevice(settings.ReadyTimeout)
	}
	defer device.Close()

	session := player.NewSession(player.Options{
		Device:     device,
		Fetcher:    e.fetcher,
		Cache:      e.cache,
		Chunks:     e.chunks,
		Durations:  e.durations,
		Resume:     e.saver,
		Downloads:  e.queue,
		ProfileFor: e.profileFor,
		Rate:       settings.Rate,
		AutoNext:   settings.AutoNext,
	})
	defer session.Close()
	session.SetItems(items)

	stopWatch, err := config.Watch(path, func(s config.Settings) {
		e.applySettings(s)
		session.SetRate(s.Rate)
	})
	if err != nil {
		log.Warn("config watch unavailable", "error", err)
	} else {
		defer stopWatch()
	}

	ctx := context.Background()
	opts := player.DefaultLoadOptions()
	opts.Autoplay = settings.AutoPlay
	if err := session.LoadLastPlayed(ctx, opts); err != nil {
		if !errors.Is(err, player.ErrNoSuchItem) {
			log.Warn("resume failed, starting from the top", "error", player.Normalize(err))
		}
		if err := session.LoadIndex(ctx, 0, opts); err != nil {
			return err
		}
	}

	log.Info("listening", "items", len(items), "voice", settings.Voice, "mock", settings.Mock)
	waitForInterrupt(session)
	return nil
}

// waitForInterrupt blocks until SIGINT/SIGTERM, logging playback position
// every few seconds at debug level.
func waitForInterrupt(session *player.Session) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			log.Info("shutting down")
			return
		case <-ticker.C:
			st := session.State()
			log.Debug("playback",
				"state", st.Current.String(),
				"item", st.ItemID,
				"chunk", fmt.Sprintf("%d/%d", st.ChunkIndex+1, st.ChunkCount),
				"position", st.Position.Round(time.Second))
		}
	}
}

func runDownload(cmd *cobra.Command, args []string) error {
	settings, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	items, err := feed.LoadFile(args[0])
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("feed %s holds no items", args[0])
	}

	finished := make(chan bool, len(items))
	e, err := buildEngine(settings,
		func(p download.Progress) {
			log.Info("download progress", "item", p.ItemID, "percent", int(p.Percent), "chunks", fmt.Sprintf("%d/%d", p.ChunksDone, p.ChunkCount))
		},
		func(itemID string) {
			finished <- true
		},
		func(itemID string, err error) {
			log.Error("download failed", "item", itemID, "error", player.Normalize(err))
			finished <- false
		})
	if err != nil {
		return err
	}
	defer e.close()

	e.queue.Enqueue(items...)

	var done, errored int
	for done+errored < len(items) {
		if ok := <-finished; ok {
			done++
		} else {
			errored++
		}
	}

	log.Info("downloads finished", "ok", done, "failed", errored)
	if errored > 0 {
		return fmt.Errorf("%d of %d items failed to download", errored, len(items))
	}
	return nil
}
