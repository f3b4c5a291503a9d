package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"anycoder/buffer"
	"anycoder/client/openai"
	"anycoder/coder"
	"anycoder/engine"
	"anycoder/logger"
	"anycoder/metrics"
	"anycoder/text"
	"anycoder/types"
	"anycoder/watcher"

	"github.com/neovim/go-client/nvim"
)

type Daemon struct {
	config      Config
	coder       *coder.Coder
	engine      *engine.Engine
	watcher     *watcher.Watcher
	history     *metrics.History
	hub         *buffer.Hub
	listener    net.Listener
	clientCount int64
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewDaemon(config Config, getenv func(string) string) (*Daemon, error) {
	provider := config.providerConfig(getenv)
	if provider.APIKey == "" {
		logger.Warn("%s is not set, requests are sent without an API key", config.APIKeyEnv)
	}

	c := coder.New(openai.NewClient(provider), coder.Config{
		AnchorMode:   types.ParseAnchorMode(config.AnchorMode),
		ContextLines: config.ContextLines,
	})

	w, err := watcher.New(config.Root, watcher.Config{
		Debounce: time.Duration(config.Debounce) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}

	eng := engine.NewEngine(c, engine.EngineConfig{
		Root:              w.Root(),
		CompletionTimeout: time.Duration(config.CompletionTimeout) * time.Millisecond,
	})

	hub := buffer.NewHub()
	eng.SetNotifier(hub)

	var history *metrics.History
	if config.HistoryDB != "" {
		history, err = metrics.OpenHistory(config.HistoryDB)
		if err != nil {
			return nil, err
		}
		eng.SetHistory(history)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		config:  config,
		coder:   c,
		engine:  eng,
		watcher: w,
		history: history,
		hub:     hub,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start runs until a shutdown signal arrives or the watcher fails
func (d *Daemon) Start() error {
	logger.Info("starting anycoder, model %s", d.config.ProviderModel)
	logger.Info("write %s wherever you want code", text.CursorMarker)

	if d.config.NvimSocket != "" {
		if err := d.setupSocket(); err != nil {
			return err
		}
		defer d.cleanup()
		logger.Info("listening for neovim on %s", d.config.NvimSocket)
		go d.acceptConnections()
	}

	d.setupShutdownHandling()

	d.engine.Start(d.ctx, d.watcher.Events())
	err := d.watcher.Run(d.ctx)

	logger.Info("daemon shutting down...")
	d.Stop()
	d.logSummary()
	if d.history != nil {
		d.history.Close()
	}
	return err
}

func (d *Daemon) setupSocket() error {
	os.Remove(d.config.NvimSocket)

	listener, err := net.Listen("unix", d.config.NvimSocket)
	if err != nil {
		return err
	}
	d.listener = listener
	return nil
}

func (d *Daemon) setupShutdownHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			d.Stop()
		case <-d.ctx.Done():
		}
		signal.Stop(sigChan)
	}()
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if d.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error("error accepting connection: %v", err)
			continue
		}

		atomic.AddInt64(&d.clientCount, 1)
		logger.Info("new client connected, total clients: %d", atomic.LoadInt64(&d.clientCount))
		d.wg.Add(1)
		go d.handleConnection(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer d.wg.Done()
	defer conn.Close()
	defer func() {
		atomic.AddInt64(&d.clientCount, -1)
		logger.Info("client disconnected, remaining clients: %d", atomic.LoadInt64(&d.clientCount))
	}()

	n, err := nvim.New(conn, conn, conn, log.Printf)
	if err != nil {
		logger.Error("error creating nvim client: %v", err)
		return
	}

	buf := buffer.New(n)
	completer := buffer.NewCompleter(buf, d.coder, time.Duration(d.config.CompletionTimeout)*time.Millisecond)
	if err := buf.Register(completer); err != nil {
		logger.Error("error registering handler: %v", err)
		return
	}
	d.hub.Add(buf)
	defer d.hub.Remove(buf)

	go func() {
		<-d.ctx.Done()
		conn.Close()
	}()

	if err := n.Serve(); err != nil && !errors.Is(err, io.EOF) && d.ctx.Err() == nil {
		logger.Error("error serving connection: %v", err)
	}
}

func (d *Daemon) Stop() {
	d.cancel()
	d.engine.Stop()
	if d.listener != nil {
		d.listener.Close()
	}
}

func (d *Daemon) cleanup() {
	d.wg.Wait()
	os.Remove(d.config.NvimSocket)
}

func (d *Daemon) logSummary() {
	if d.history == nil {
		return
	}
	summary, err := d.history.Summary()
	if err != nil {
		logger.Warn("failed to read history summary: %v", err)
		return
	}

	outcomes := make([]string, 0, len(summary))
	for outcome := range summary {
		outcomes = append(outcomes, string(outcome))
	}
	sort.Strings(outcomes)
	for _, outcome := range outcomes {
		logger.Info("history: %s %d", outcome, summary[metrics.Outcome(outcome)])
	}
}
