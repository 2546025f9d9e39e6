package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gluk-w/claworc/webssh/internal/config"
	"github.com/gluk-w/claworc/webssh/internal/connection"
	"github.com/gluk-w/claworc/webssh/internal/console"
	"github.com/gluk-w/claworc/webssh/internal/credentials"
	"github.com/gluk-w/claworc/webssh/internal/database"
	"github.com/gluk-w/claworc/webssh/internal/handlers"
	"github.com/gluk-w/claworc/webssh/internal/logging"
	"github.com/gluk-w/claworc/webssh/internal/prompt"
	"github.com/gluk-w/claworc/webssh/internal/session"
	"github.com/gluk-w/claworc/webssh/internal/settings"
	"github.com/gluk-w/claworc/webssh/internal/terminal"
	"github.com/gluk-w/claworc/webssh/internal/transport"
)

func main() {
	// Handle CLI commands before starting a session
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--validate-key":
			runCLICommand("validate-key")
			return
		case "--download-log":
			runCLICommand("download-log")
			return
		case "--clear-log":
			runCLICommand("clear-log")
			return
		}
	}

	config.Load()
	logging.Init(true)
	defer logging.Close()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	serverURL, err := url.Parse(config.Cfg.ServerURL)
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}
	profile, err := config.LoadProfile(config.Cfg.ProfilePath)
	if err != nil {
		log.Fatalf("Profile: %v", err)
	}

	urlSource, banner := credentials.FromURL(serverURL)
	defaults := []credentials.Source{urlSource, profileSource(profile)}
	var basicAuth *credentials.Source
	if config.Cfg.HasBasicAuth() {
		basicAuth = &credentials.Source{
			Name:     "basic-auth",
			Username: config.Cfg.BasicAuthUser,
			Password: config.Cfg.BasicAuthPassword,
		}
	}

	prefs := settings.NewManager()
	prefs.ApplyProfile(profile)
	applyLogLevel(prefs.Get())
	prefs.Subscribe(func(_, p settings.Preferences) { applyLogLevel(p) })

	tty := terminal.New(os.Stdin, os.Stdout)
	engine := prompt.NewEngine()
	ui := console.New(console.Config{Screen: tty, Prompts: engine, Prefs: prefs.Get})

	sessionLog := terminal.NewSessionLog(serverURL.Host, config.Cfg.SessionLogLimit)
	stopFlusher, err := terminal.StartFlusher(sessionLog, config.Cfg.LogFlushSchedule)
	if err != nil {
		log.Fatalf("Session log: %v", err)
	}
	defer stopFlusher()

	machine := connection.New(connection.Config{
		Dial: transport.Dial(transport.Options{
			URL:               config.Cfg.ServerURL,
			Path:              config.Cfg.SocketPath,
			BasicAuthUser:     config.Cfg.BasicAuthUser,
			BasicAuthPassword: config.Cfg.BasicAuthPassword,
			Insecure:          config.Cfg.Insecure,
			DialTimeout:       15 * time.Second,
		}),
		State:              session.New(),
		UI:                 ui,
		Terminal:           ui,
		Log:                sessionLog,
		Defaults:           defaults,
		BasicAuth:          basicAuth,
		Term:               config.Cfg.Term,
		AllowedAuthMethods: credentials.ParseAuthMethods(config.Cfg.AllowedAuthMethods),
	})
	machine.OnTransport(engine.Attach)
	ui.SetSession(machine)

	handlers.Machine = machine
	handlers.Prompts = engine
	handlers.Preferences = prefs
	handlers.SessionLog = sessionLog

	if config.Cfg.ProfilePath != "" {
		w, err := settings.WatchProfile(config.Cfg.ProfilePath, prefs.ApplyProfile)
		if err != nil {
			log.Printf("WARNING: profile watcher: %v", err)
		} else {
			defer w.Close()
		}
	}

	var srv *http.Server
	if config.Cfg.StatusAddr != "" {
		srv = &http.Server{
			Addr:              config.Cfg.StatusAddr,
			Handler:           handlers.NewRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("Control API listening on %s", config.Cfg.StatusAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Control API error: %v", err)
			}
		}()
	}

	if err := tty.MakeRaw(); err != nil {
		log.Fatalf("Terminal: %v", err)
	}
	defer tty.Restore()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tty.WatchResize(sigCtx, func(cols, rows int) {
		if err := machine.Resize(cols, rows); err != nil && !errors.Is(err, connection.ErrNotConnected) {
			log.Printf("Resize: %v", err)
		}
	})

	if banner.Text != "" && banner.Validate() == nil {
		ui.UpdateElement("header", banner.Text)
	} else if profile.Header.Text != "" && credentials.ValidateBannerText(profile.Header.Text) == nil {
		ui.UpdateElement("header", profile.Header.Text)
	}

	machine.Connect(nil)
	if err := ui.Run(sigCtx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Console: %v", err)
	}

	log.Println("Shutting down...")
	machine.Disconnect()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}
}

func profileSource(p *config.Profile) credentials.Source {
	return credentials.Source{
		Name:     "profile",
		Host:     p.Host,
		Port:     p.Port,
		Username: p.Username,
		Term:     p.Term,
	}
}

func applyLogLevel(p settings.Preferences) {
	logging.SetDebug(config.Cfg.Debug || p.LogLevel == settings.LogDebug)
}

func runCLICommand(command string) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	keyFile := fs.String("file", "", "Private key file")
	output := fs.String("output", "", "Write the session log here instead of stdout")
	fs.Parse(os.Args[2:])

	switch command {
	case "validate-key":
		if *keyFile == "" {
			fmt.Fprintf(os.Stderr, "Usage: webssh --%s --file <key>\n", command)
			os.Exit(1)
		}
		data, err := os.ReadFile(*keyFile)
		if err != nil {
			log.Fatalf("Read key: %v", err)
		}
		info, err := credentials.ValidatePrivateKeyDeep(string(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid key: %v\n", err)
			os.Exit(1)
		}
		if info.Encrypted {
			tty := terminal.New(os.Stdin, os.Stderr)
			if tty.IsTTY() {
				fmt.Fprint(os.Stderr, "Passphrase: ")
				pass, err := tty.ReadPassword()
				fmt.Fprintln(os.Stderr)
				if err != nil {
					log.Fatalf("Read passphrase: %v", err)
				}
				if err := credentials.CheckPassphrase(string(data), pass); err != nil {
					fmt.Fprintf(os.Stderr, "Invalid key: %v\n", err)
					os.Exit(1)
				}
			}
		}
		fmt.Printf("Valid %s private key (encrypted: %v)\n", info.Format, info.Encrypted)
		return
	}

	config.Load()
	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	switch command {
	case "download-log":
		out := os.Stdout
		if *output != "" {
			f, err := os.OpenFile(*output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
			if err != nil {
				log.Fatalf("Open output: %v", err)
			}
			defer f.Close()
			out = f
		}
		s, err := terminal.LoadLatest()
		if err != nil {
			if errors.Is(err, terminal.ErrNoSessionLog) {
				fmt.Fprintln(os.Stderr, "No session log stored.")
				os.Exit(1)
			}
			log.Fatalf("Load session log: %v", err)
		}
		if _, err := fmt.Fprint(out, s.Text()); err != nil {
			log.Fatalf("Write session log: %v", err)
		}
		if err := database.DeleteSessionLogs(); err != nil {
			log.Fatalf("Clear session log: %v", err)
		}

	case "clear-log":
		if err := database.DeleteSessionLogs(); err != nil {
			log.Fatalf("Clear session log: %v", err)
		}
		fmt.Println("Session log cleared.")
	}
}
