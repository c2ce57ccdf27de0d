package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize/english"
	"go.uber.org/zap"
)

// Game wires the registry to the transport, the ledger and the storyteller.
// Every method below that is not an entry point expects the registry lock to be held.
type Game struct {
	reg    *Registry
	hub    *Hub
	ledger *Ledger     // nil disables history
	teller Storyteller // nil disables narration
	cfg    AppConfig

	// names killed since the last story, guarded by the registry lock
	fallen []string

	stories sync.WaitGroup
}

func newGame(cfg AppConfig, hub *Hub, ledger *Ledger, teller Storyteller) *Game {
	return &Game{
		reg:    NewRegistry(),
		hub:    hub,
		ledger: ledger,
		teller: teller,
		cfg:    cfg,
	}
}

// deathCause picks the notice a victim receives
type deathCause int

const (
	causeVillage deathCause = iota
	causeWolves
	causePoison
	causeHunter
)

func (c deathCause) notice() string {
	switch c {
	case causeWolves:
		return "You have been killed by wolves during the night"
	case causePoison:
		return "You have been poisoned by the witch"
	case causeHunter:
		return "You have been shot by the hunter"
	default:
		return "You have been eliminated by the village"
	}
}

func (g *Game) send(s *Session, t MsgType, payload string) {
	g.hub.send(s, t, payload)
}

// broadcast sends to every connection except one (nil for none)
func (g *Game) broadcast(t MsgType, payload string, except *Session) {
	g.hub.broadcast(g.reg.Sessions(), t, payload, except)
}

func (g *Game) multicast(recipients []*Session, t MsgType, payload string, except *Session) {
	g.hub.broadcast(recipients, t, payload, except)
}

func (g *Game) nameOf(s *Session) string {
	if p := g.reg.Player(s); p != nil {
		return p.Name
	}
	return s.ID
}

// record appends a history entry for the running game; failures are only logged
func (g *Game) record(actor, actionType, target, visibility, description string) {
	err := g.ledger.Record(GameAction{
		GameID:      g.reg.gameID,
		Round:       g.reg.round,
		Phase:       string(g.reg.phase),
		Actor:       actor,
		ActionType:  actionType,
		Target:      target,
		Visibility:  visibility,
		Description: description,
	})
	if err != nil {
		logError("record: "+actionType, err)
	}
}

// setPhase moves the game to p, clears votes and announces it
func (g *Game) setPhase(p Phase) {
	g.cancelTimer()
	g.reg.phase = p
	g.reg.await = awaitNone
	g.reg.ClearVotes()
	if p == PhaseNight {
		g.reg.round++
		g.reg.night = nightRecord{}
	}

	zap.L().Info("Phase changed", zap.String("phase", string(p)), zap.Int("round", g.reg.round))
	g.broadcast(MsgState, string(p), nil)
	LogDBState("after phase " + string(p))

	if p == PhaseNight {
		g.notifySleepers()
		g.beginNight()
	}
}

// kill marks the player dead and announces it. Dead hunters are queued for their shot.
func (g *Game) kill(s *Session, cause deathCause) {
	p := g.reg.Player(s)
	if p == nil || !p.Alive {
		return
	}
	p.Alive = false
	g.fallen = append(g.fallen, p.Name)

	zap.L().Info("Player died", zap.String("name", p.Name), zap.String("role", string(p.Role)), zap.String("cause", cause.notice()))
	g.broadcast(MsgKill, p.Name, nil)
	g.send(s, MsgState, cause.notice())

	if p.Role == RoleHunter {
		g.reg.hunters = append(g.reg.hunters, s)
	}
}

// finishDeaths settles pending hunter shots, then checks for a winner and moves to next
func (g *Game) finishDeaths(next Phase) {
	if len(g.reg.hunters) > 0 {
		g.reg.afterHunters = next
		g.promptHunter()
		return
	}
	g.reg.afterHunters = ""
	g.maybeTellStory()
	if g.checkWinConditions() {
		return
	}
	g.setPhase(next)
}

// promptHunter asks the head of the hunter queue for a target
func (g *Game) promptHunter() {
	h := g.reg.hunters[0]
	g.reg.await = awaitHunter
	DebugLog("promptHunter", "Waiting for hunter %s", g.nameOf(h))
	g.send(h, MsgHunterShoot, "")
	g.armTimer(awaitHunter)
}

// checkWinConditions checks if the game has ended and returns true if so
func (g *Game) checkWinConditions() bool {
	if g.reg.phase != PhaseDay && g.reg.phase != PhaseNight {
		return false
	}
	wolves, others := g.reg.aliveCounts()
	zap.L().Info("Win check", zap.Int("werewolves", wolves), zap.Int("villagers", others))

	switch {
	case wolves == 0:
		g.endGame(TeamVillager)
		return true
	case wolves >= others:
		g.endGame(TeamWerewolf)
		return true
	default:
		return false
	}
}

// endGame announces the winner, reveals every role and parks the game in end
func (g *Game) endGame(winner string) {
	g.cancelTimer()
	g.reg.phase = PhaseEnd
	g.reg.await = awaitNone
	g.reg.hunters = nil
	g.reg.ClearVotes()

	state := "villagers_win"
	if winner == TeamWerewolf {
		state = "werewolves_win"
	}
	g.broadcast(MsgState, state, nil)
	g.broadcast(MsgChat, g.revealRoles(winner), nil)

	if err := g.ledger.FinishGame(g.reg.gameID, winner); err != nil {
		logError("endGame: finish game", err)
	}
	zap.L().Info("Game finished", zap.Int64("game", g.reg.gameID), zap.String("winner", winner))
	LogDBState("after game end")
}

// revealRoles renders the end-of-game summary
func (g *Game) revealRoles(winner string) string {
	var wolves, roles []string
	for _, s := range g.reg.InGame() {
		p := g.reg.Player(s)
		if p.Role == RoleWerewolf {
			wolves = append(wolves, p.Name)
		}
		roles = append(roles, fmt.Sprintf("%s (%s)", p.Name, p.Role))
	}
	pack := english.WordSeries(wolves, "and")
	if pack == "" {
		pack = "nobody"
	}

	var b strings.Builder
	if winner == TeamWerewolf {
		fmt.Fprintf(&b, "The werewolves win! %s now outnumber the village.", pack)
	} else {
		fmt.Fprintf(&b, "The villagers win! The werewolves (%s) have been eliminated.", pack)
	}
	if len(roles) > 0 {
		b.WriteString(" Roles: " + strings.Join(roles, ", ") + ".")
	}
	return b.String()
}

// armTimer starts the action timeout for the awaited step
func (g *Game) armTimer(step awaitStep) {
	g.cancelTimer()
	if g.cfg.ActionTimeout <= 0 {
		return
	}
	gen := g.reg.timerGen
	g.reg.timer = time.AfterFunc(g.cfg.ActionTimeout, func() {
		g.onTimeout(gen, step)
	})
}

// cancelTimer stops any pending timeout; a timer that already fired sees a new generation
func (g *Game) cancelTimer() {
	if g.reg.timer != nil {
		g.reg.timer.Stop()
		g.reg.timer = nil
	}
	g.reg.timerGen++
}

// onTimeout is an entry point: it takes the registry lock itself
func (g *Game) onTimeout(gen uint64, step awaitStep) {
	g.reg.Lock()
	defer g.reg.Unlock()

	if gen != g.reg.timerGen || g.reg.await != step {
		return
	}
	g.reg.timer = nil
	zap.L().Info("Action timed out", zap.Stringer("step", step), zap.Int("round", g.reg.round))

	switch step {
	case awaitSeer:
		g.multicast(g.reg.AliveWithRole(RoleSeer), MsgState, "Time is up, the seer sleeps", nil)
		g.wolvesStep()
	case awaitWolves:
		g.multicast(g.reg.AliveWithRole(RoleWerewolf), MsgState, "Time is up for the werewolves", nil)
		g.resolveWolfVote(true)
	case awaitWitch:
		g.multicast(g.reg.AliveWithRole(RoleWitch), MsgState, "Time is up, no potion used", nil)
		g.record(g.firstName(RoleWitch), ActionWitchPass, "", VisibilityActor, "")
		g.resolveNight()
	case awaitHunter:
		if len(g.reg.hunters) > 0 {
			h := g.reg.hunters[0]
			g.reg.hunters = g.reg.hunters[1:]
			g.send(h, MsgState, "Time is up, your shot is lost")
		}
		g.finishDeaths(g.reg.afterHunters)
	}
}

// firstName is the name of the first living player with role, or ""
func (g *Game) firstName(role Role) string {
	if alive := g.reg.AliveWithRole(role); len(alive) > 0 {
		return g.reg.Player(alive[0]).Name
	}
	return ""
}
