package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize/english"
	"go.uber.org/zap"
)

// connect tracks a new connection until it joins or leaves
func (g *Game) connect(s *Session) {
	g.reg.Lock()
	defer g.reg.Unlock()

	g.reg.Connect(s)
	zap.L().Info("New connection", zap.Stringer("session", s), zap.Int("connections", len(g.reg.sessions)))
}

// handleJoin claims a username and introduces the player to the others
func (g *Game) handleJoin(s *Session, name string) {
	err := g.reg.Join(s, name)
	switch {
	case errors.Is(err, ErrNameTaken):
		g.send(s, MsgState, "This username is already taken. Enter a new one:")
		return
	case errors.Is(err, ErrEmptyName):
		g.send(s, MsgState, "Username cannot be empty. Enter a new one:")
		return
	case errors.Is(err, ErrAlreadyJoined):
		g.send(s, MsgState, fmt.Sprintf("You already joined as %s", g.nameOf(s)))
		return
	case err != nil:
		logError("handleJoin", err)
		return
	}

	p := g.reg.Player(s)
	zap.L().Info("Player joined", zap.String("name", p.Name), zap.Stringer("session", s))

	for _, other := range g.reg.Joined() {
		if other != s {
			g.send(s, MsgJoin, g.reg.Player(other).Name)
		}
	}
	g.broadcast(MsgJoin, p.Name, s)

	if g.reg.phase == PhaseWaiting {
		g.send(s, MsgState, fmt.Sprintf("Welcome %s! Waiting for the game to start", p.Name))
	} else {
		g.send(s, MsgState, fmt.Sprintf("Welcome %s! A game is running, you will play in the next one", p.Name))
	}
}

// handleStart assigns roles and starts the first night
func (g *Game) handleStart(s *Session) {
	if g.reg.phase != PhaseWaiting {
		g.send(s, MsgState, "Game already started")
		return
	}
	n := len(g.reg.Joined())
	if n < g.cfg.MinPlayers {
		g.send(s, MsgState, fmt.Sprintf("Need at least %d players to start", g.cfg.MinPlayers))
		return
	}
	if n < g.cfg.RecommendedPlayers {
		g.broadcast(MsgState, fmt.Sprintf("Starting with %s, %d or more is recommended",
			english.Plural(n, "player", "players"), g.cfg.RecommendedPlayers), nil)
	}

	zap.L().Info("Game starting", zap.String("by", g.nameOf(s)), zap.Int("players", n))
	g.assignRoles()
	g.setPhase(PhaseNight)
}

// assignRoles deals a shuffled deck to every joined player and opens a ledger game
func (g *Game) assignRoles() {
	joined := g.reg.Joined()
	deck := buildRoleDeck(len(joined))

	roster := make([]GamePlayer, 0, len(joined))
	for i, s := range joined {
		p := g.reg.Player(s)
		p.Role = deck[i]
		p.Alive = true
		roster = append(roster, GamePlayer{Name: p.Name, Role: string(p.Role)})
		g.send(s, MsgRole, string(p.Role))
		DebugLog("assignRoles", "%s is a %s", p.Name, p.Role)
	}

	wolves := g.reg.AliveWithRole(RoleWerewolf)
	if len(wolves) > 1 {
		pack := fmt.Sprintf("Your pack: %s", english.WordSeries(g.reg.Names(wolves), "and"))
		g.multicast(wolves, MsgState, pack, nil)
	}

	summary := distributionSummary(roleCounts(len(joined)))
	g.broadcast(MsgRoleDistribution, summary, nil)
	zap.L().Info("Roles assigned", zap.Int("players", len(joined)), zap.String("distribution", summary))

	gameID, err := g.ledger.StartGame(roster)
	if err != nil {
		logError("assignRoles: start game", err)
	}
	g.reg.gameID = gameID
	g.fallen = nil
}

// handleRestart abandons any running game and returns everyone to the lobby
func (g *Game) handleRestart(s *Session) {
	g.cancelTimer()
	if g.reg.phase == PhaseDay || g.reg.phase == PhaseNight {
		if err := g.ledger.FinishGame(g.reg.gameID, winnerAborted); err != nil {
			logError("handleRestart: finish game", err)
		}
	}
	g.reg.resetGame()
	g.fallen = nil

	zap.L().Info("Game restarted", zap.String("by", g.nameOf(s)))
	g.broadcast(MsgState, "Game has been restarted", nil)
	g.setPhase(PhaseWaiting)
}

// disconnect removes s everywhere and repairs whatever the game was waiting on
func (g *Game) disconnect(s *Session) {
	g.reg.Lock()
	defer g.reg.Unlock()

	wasAwaitedHunter := g.reg.await == awaitHunter && len(g.reg.hunters) > 0 && g.reg.hunters[0] == s
	var orphaned []*Session
	if p := g.reg.Player(s); p != nil {
		orphaned = g.reg.votersFor(p.Name)
	}
	p := g.reg.Remove(s)
	g.hub.unregister(s)

	if p == nil {
		zap.L().Info("Connection closed before joining", zap.Stringer("session", s))
		return
	}
	zap.L().Info("Player left", zap.String("name", p.Name), zap.String("phase", string(g.reg.phase)))
	g.broadcast(MsgState, fmt.Sprintf("%s has left the game", p.Name), nil)
	for _, v := range orphaned {
		if v != s {
			g.send(v, MsgState, fmt.Sprintf("Your vote for %s was cleared. Vote again", p.Name))
		}
	}

	if p.Role != RoleNone {
		g.reconcile(wasAwaitedHunter)
	}
}

// reconcile skips an awaited actor that left, tallies votes that became complete
// and re-checks the win condition
func (g *Game) reconcile(wasAwaitedHunter bool) {
	if g.reg.phase != PhaseDay && g.reg.phase != PhaseNight {
		return
	}

	switch g.reg.await {
	case awaitSeer:
		if len(g.reg.AliveWithRole(RoleSeer)) == 0 {
			g.wolvesStep()
		}
	case awaitWolves:
		wolves := g.reg.AliveWithRole(RoleWerewolf)
		g.reg.pruneVotes(wolves)
		if len(wolves) == 0 {
			g.witchStep()
		} else if g.reg.AllVoted(wolves) {
			g.resolveWolfVote(false)
		}
	case awaitWitch:
		if len(g.reg.AliveWithRole(RoleWitch)) == 0 {
			g.resolveNight()
		}
	case awaitHunter:
		if wasAwaitedHunter {
			if len(g.reg.hunters) > 0 {
				g.promptHunter()
			} else {
				g.finishDeaths(g.reg.afterHunters)
			}
		}
	case awaitNone:
		if g.reg.phase == PhaseDay {
			alive := g.reg.Alive()
			g.reg.pruneVotes(alive)
			if len(alive) > 0 && g.reg.AllVoted(alive) {
				g.tallyDay()
			}
		}
	}

	if g.reg.await != awaitHunter {
		g.checkWinConditions()
	}
}
