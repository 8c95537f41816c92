// Command ircengine is a thin reference harness wiring config -> TCP
// dial -> engine, per SPEC_FULL.md §14. It replaces the teacher's
// cmd/senpai (which wires the same pieces into a full-screen tcell UI)
// with a plain-stdout Display, since the terminal UI is out of scope
// (spec.md §1).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.sr.ht/~progval/ircengine/config"
	"git.sr.ht/~progval/ircengine/engine"
	"git.sr.ht/~progval/ircengine/ui"
	"golang.org/x/time/rate"
)

// exit codes, per spec.md §6.
const (
	exitOK        = 0
	exitArgsError = 2
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to the scfg configuration file")
	flag.Parse()

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: ircengine -config <path>")
		os.Exit(exitArgsError)
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load the required configuration file at %q: %s\n", configPath, err)
		os.Exit(exitArgsError)
	}

	eng := engine.New(engine.Options{
		Nickname: cfg.Nick,
		Username: cfg.User,
		Realname: cfg.Real,
		Password: cfg.Password,
		Display:  stdoutDisplay{},
		Logger:   log.New(os.Stderr, "ircengine: ", log.LstdFlags),
		Dial: func() (engine.Connection, error) {
			return engine.DialTCP(cfg.Addr, rate.Every(500*time.Millisecond), 4)
		},
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigCh
		eng.Submit(engine.Exit{Reason: "interrupted"})
	}()

	eng.Start()
	<-eng.Done() // blocks until Exit/Close tears the engine down.
}

// stdoutDisplay is the minimal Display adapter SPEC_FULL.md §14 calls for:
// protocol logic never depends on it being anything richer than "prints
// somewhere". A real terminal front-end (out of scope per spec.md §1)
// would implement the same interface the way the teacher's *App does.
type stdoutDisplay struct{}

func (stdoutDisplay) Println(t time.Time, sender, receiver string, text ui.StyledString) {
	fmt.Printf("[%s] %s\n", t.Format("15:04:05"), text.String())
}

func (stdoutDisplay) SetStatus(text ui.StyledString) {
	fmt.Printf("-- %s --\n", text.String())
}

func (stdoutDisplay) SetPrompt(text ui.StyledString) {
	fmt.Printf("> %s\n", text.String())
}
