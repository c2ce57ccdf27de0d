package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// serverOnly lists the types only the server sends; clients sending them are ignored
var serverOnly = map[MsgType]bool{
	MsgRole:             true,
	MsgState:            true,
	MsgKill:             true,
	MsgSeerResult:       true,
	MsgWitchAction:      true,
	MsgRoleDistribution: true,
	MsgInvalid:          true,
}

// handleLine decodes one inbound line and routes it
func (g *Game) handleLine(s *Session, line string) {
	LogWireMessage("IN", s.ID, line)
	g.handleMessage(s, decodeMessage(line))
}

// handleMessage routes one message. It holds the registry lock for the whole message,
// so a vote, its tally and the resulting transition happen atomically.
func (g *Game) handleMessage(s *Session, msg Message) {
	g.reg.Lock()
	defer g.reg.Unlock()

	if serverOnly[msg.Type] {
		DebugLog("handleMessage", "Ignoring %s from %s: %q", msg.Type, s, msg.Payload)
		return
	}
	if msg.Type == MsgJoin {
		g.handleJoin(s, msg.Payload)
		return
	}
	if g.reg.Player(s) == nil {
		g.send(s, MsgState, "Join the game first")
		return
	}

	switch msg.Type {
	case MsgChat:
		g.handleChat(s, msg.Payload)
	case MsgVote:
		g.handleVote(s, msg.Payload)
	case MsgNightVote:
		g.handleNightVote(s, msg.Payload)
	case MsgNightMsg:
		g.handleNightMsg(s, msg.Payload)
	case MsgSeerAction:
		g.handleSeerAction(s, msg.Payload)
	case MsgHunterShoot:
		g.handleHunterShoot(s, msg.Payload)
	case MsgStart:
		g.handleStart(s)
	case MsgRestart:
		g.handleRestart(s)
	default:
		DebugLog("handleMessage", "Unknown message type %q from %s (%s)", msg.Type, g.nameOf(s), g.reg.phase)
	}
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	initLogger(cfg.LogLevel)
	defer zap.L().Sync()

	var ledger *Ledger
	if cfg.DB != "" {
		ledger, err = openLedger(cfg.DB)
		if err != nil {
			zap.L().Fatal("Failed to open ledger", zap.Error(err))
		}
		defer ledger.Close()
	}

	appLogger, err = NewAppLogger(cfg.toLogConfig(), ledger)
	if err != nil {
		zap.L().Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer CloseAppLogger()
	LogDBState("after openLedger")

	hub := newHub(cfg)
	game := newGame(cfg, hub, ledger, initStoryteller(cfg))
	srv := newServer(cfg, game)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.tcpAddr())
	if err != nil {
		zap.L().Fatal("Failed to listen", zap.String("addr", cfg.tcpAddr()), zap.Error(err))
	}
	zap.L().Info("Server listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 2)
	go func() { errCh <- srv.ServeTCP(ln) }()
	if cfg.WSAddr != "" {
		zap.L().Info("WebSocket bridge listening", zap.String("addr", cfg.WSAddr))
		go func() { errCh <- srv.ListenAndServeWS(cfg.WSAddr) }()
	}

	select {
	case <-ctx.Done():
		zap.L().Info("Shutting down...")
	case err := <-errCh:
		if err != nil {
			logError("server stopped", err)
		}
	}

	if err := srv.Shutdown(shutdownTimeout); err != nil {
		logError("shutdown", err)
	}
}
