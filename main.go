// Package main provides the entry point for the Drop Analyzer desktop
// application.
package main

import (
	"fmt"
	"os"
	"time"

	fyneapp "fyne.io/fyne/v2/app"
	"github.com/rs/zerolog"

	"drop-analyzer/internal/app"
	"drop-analyzer/internal/config"
	"drop-analyzer/internal/fitting"
	"drop-analyzer/internal/logging"
	"drop-analyzer/internal/telemetry"
	"drop-analyzer/internal/version"
	"drop-analyzer/internal/vision"
	"drop-analyzer/ui/prefs"
	"drop-analyzer/ui/runwindow"
)

const appTitle = "Drop Analyzer"

func main() {
	appPrefs := prefs.Load()

	// Handle command line arguments
	sessionPath := appPrefs.String(prefs.KeyLastSession)
	if len(os.Args) > 1 {
		sessionPath = os.Args[1]
	}

	cfg := config.Default()
	if sessionPath != "" {
		loaded, err := config.Load(sessionPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load session %s: %v\n", sessionPath, err)
			os.Exit(1)
		}
		cfg = loaded
		appPrefs.SetString(prefs.KeyLastSession, sessionPath)
	}

	log, err := logging.Setup(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("version", version.Version).Msgf("Starting %s", appTitle)

	// the window does not exist yet when the session is created
	var win *runwindow.Window
	hook := func(step, total int) {
		if win != nil {
			win.Progress(step, total)
		}
	}

	session, err := app.NewSession(cfg, app.Deps{
		Detector: vision.NewDetector(),
		Fitter:   fitting.New(),
		Logger:   log,
		Metrics:  telemetry.Noop(),
		Hook:     hook,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session")
	}
	defer session.Close()

	a := fyneapp.NewWithID("org.dropanalyzer.app")
	a.Settings().SetTheme(&app.DropTheme{})
	win = runwindow.New(a, fmt.Sprintf("%s %s", appTitle, version.Version), session, appPrefs, log)

	if len(cfg.Inputs) > 0 {
		if err := session.Open(cfg.Inputs); err != nil {
			log.Error().Err(err).Strs("inputs", cfg.Inputs).Msg("failed to open inputs")
		}
	}

	if sessionPath != "" {
		watcher := watchSession(sessionPath, session, log)
		defer watcher.Stop()
	}

	win.ShowAndRun()
}

// watchSession applies the detection and fit parameters of the session
// file whenever it is edited on disk.
func watchSession(path string, session *app.Session, log zerolog.Logger) *app.FileWatcher {
	watcher := app.NewFileWatcher(2*time.Second, path)
	watcher.OnChange(func(string) {
		cfg, err := config.Load(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("session file not reloaded")
			return
		}
		log.Info().Str("path", path).Msg("session file changed, parameters reloaded")
		session.SetEdge(cfg.Edge)
		session.SetFit(cfg.Fit)
		session.SetStride(cfg.Stride)
		session.SetSmoothing(cfg.Smoothing)
	})
	watcher.Start()
	return watcher
}
