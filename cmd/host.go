package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/term"

	"github.com/tandemterm/host/internal/config"
	"github.com/tandemterm/host/internal/hub"
	"github.com/tandemterm/host/internal/mdns"
	"github.com/tandemterm/host/internal/pty"
	"github.com/tandemterm/host/internal/server"
	"github.com/tandemterm/host/internal/storage"
)

// mainSessionID is the id of the default session. The protocol supports many
// sessions per host; the CLI currently runs one.
const mainSessionID = "main"

// hostFlags holds the CLI flags for the run command. Flags override config
// file values, which override defaults.
type hostFlags struct {
	configPath string
	addr       string
	sessionCmd string
	store      string
	mdnsOn     bool
	mdnsSet    bool
	headless   bool
}

func runHost(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var flags hostFlags
	fs.StringVar(&flags.configPath, "config", "", "Path to config file (default: ~/.tandemterm/config.toml)")
	fs.StringVar(&flags.addr, "addr", "", "Listen address for the WebSocket server (default: 127.0.0.1:7070)")
	fs.StringVar(&flags.sessionCmd, "session-cmd", "", "Command to run in the session (default: $SHELL)")
	fs.StringVar(&flags.store, "store", "", "Path to the audit database (default: ~/.tandemterm/tandemterm.db)")
	fs.BoolVar(&flags.mdnsOn, "mdns", false, "Advertise the host on the local network via mDNS")
	fs.BoolVar(&flags.headless, "headless", false, "Run without a local terminal (remote viewers only)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tandemterm run [options] [-- command args...]\n\nStart the session and serve viewer connections.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "mdns" {
			flags.mdnsSet = true
		}
	})

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// Flags take precedence over file values.
	if flags.addr != "" {
		cfg.Addr = flags.addr
	}
	if flags.sessionCmd != "" {
		cfg.SessionCmd = flags.sessionCmd
		cfg.SessionArgs = nil
	}
	if rest := fs.Args(); len(rest) > 0 {
		cfg.SessionCmd = rest[0]
		cfg.SessionArgs = rest[1:]
	}
	if flags.store != "" {
		cfg.Store = flags.store
	}
	if flags.mdnsSet {
		cfg.MdnsEnabled = flags.mdnsOn
	}
	if flags.headless {
		off := false
		cfg.LocalTerminal = &off
	}
	cfg.ApplyDefaults()

	if err := hostMain(cfg, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// hostMain wires the host together and runs until the session exits or a
// termination signal arrives.
func hostMain(cfg *config.Config, stdout, stderr io.Writer) error {
	// Audit store. The hub tolerates running without one, so a database
	// failure degrades to a warning instead of refusing to start.
	var store *storage.SQLiteStore
	if cfg.Store != "" {
		var err error
		store, err = storage.NewSQLiteStore(cfg.Store)
		if err != nil {
			log.Printf("Warning: audit store unavailable: %v", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	// Pre-attach buffering: 0 in config selects the default, -1 removes
	// the cap, which the registry expresses as limit 0.
	pendingLimit := cfg.PendingLimitBytes
	if pendingLimit < 0 {
		pendingLimit = 0
	}
	registry := hub.NewRegistryWithLimit(pendingLimit)

	manager := pty.NewManager()
	defer manager.CloseAll()

	srv := server.NewServer(cfg.Addr)

	opts := []hub.Option{}
	if store != nil {
		opts = append(opts, hub.WithAuditStore(store))
	}
	h := hub.New(registry, srv, manager, opts...)
	srv.SetHub(h)

	session := manager.CreateWithID(mainSessionID)

	localTerminal := cfg.LocalTerminalEnabled() && term.IsTerminal(int(os.Stdin.Fd()))
	session.OnOutput = func(sessionID string, chunk []byte) {
		if localTerminal {
			os.Stdout.Write(chunk)
		}
		h.PublishOutput(sessionID, chunk)
	}

	if localTerminal {
		// The local terminal is the first viewer and the callback above
		// already mirrors every chunk to it. Going live before the
		// session starts means nothing accumulates in the pre-attach
		// buffer, so no chunk can be replayed (and printed) a second
		// time. Headless hosts skip this and leave the buffer for the
		// first remote viewer.
		h.Attach(mainSessionID)
	}

	if err := <-srv.StartAsync(); err != nil {
		return err
	}
	defer srv.Stop()

	var advertiser *mdns.Advertiser
	if cfg.MdnsEnabled {
		port, err := addrPort(cfg.Addr)
		if err != nil {
			log.Printf("Warning: cannot advertise via mDNS: %v", err)
		} else {
			advertiser = mdns.NewAdvertiser(mdns.Config{Port: port})
			if err := advertiser.Start(); err != nil {
				log.Printf("Warning: mDNS advertisement failed: %v", err)
			} else {
				defer advertiser.Stop()
			}
		}
	}

	if err := session.Start(cfg.SessionCmd, cfg.SessionArgs...); err != nil {
		return err
	}

	fmt.Fprintf(stderr, "tandemterm: session %s running %s, viewers at ws://%s/ws\n",
		mainSessionID, cfg.SessionCmd, cfg.Addr)

	if localTerminal {
		restore, err := attachLocalTerminal(h, session)
		if err != nil {
			return err
		}
		defer restore()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case <-session.Done():
		log.Printf("Session exited")
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down", sig)
	}

	h.Dispose(mainSessionID)
	return nil
}

// attachLocalTerminal puts stdin into raw mode and forwards keystrokes and
// window-size changes into the hub. The session was marked live before it
// started, so output already flows to stdout through the session callback.
// The returned function restores the terminal state.
func attachLocalTerminal(h *hub.Hub, session *pty.Session) (restore func(), err error) {
	stdinFd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return nil, fmt.Errorf("set terminal raw mode: %w", err)
	}

	// Size the session to the local window and track SIGWINCH.
	if cols, rows, err := term.GetSize(stdinFd); err == nil {
		h.SetLocalSize(session.ID, rows, cols)
	}
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		for range winch {
			if cols, rows, err := term.GetSize(stdinFd); err == nil {
				h.SetLocalSize(session.ID, rows, cols)
			}
		}
	}()

	// Forward local keystrokes. Tokens go through the hub so the shared
	// input line stays in sync and the bytes still reach the PTY.
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				for _, token := range hub.SplitTokens(buf[:n]) {
					h.HandleLocalToken(session.ID, token)
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return func() {
		signal.Stop(winch)
		close(winch)
		term.Restore(stdinFd, oldState)
	}, nil
}

// addrPort extracts the numeric port from a host:port listen address.
func addrPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
