package main

import (
	"fmt"

	"github.com/dustin/go-humanize/english"
	"go.uber.org/zap"
)

// voteTarget validates the target of a vote or potion and explains rejections to s
func (g *Game) voteTarget(s *Session, target string) (*Session, bool) {
	ts, tp := g.reg.Lookup(target)
	if tp == nil {
		g.send(s, MsgState, fmt.Sprintf("Player %s does not exist.", target))
		return nil, false
	}
	if tp.Role == RoleNone {
		g.send(s, MsgState, fmt.Sprintf("%s is not playing this round.", target))
		return nil, false
	}
	if !tp.Alive {
		g.send(s, MsgState, fmt.Sprintf("%s is dead. Choose a living player.", target))
		return nil, false
	}
	return ts, true
}

// handleChat relays MSG to everyone else. In the lobby any joined player may talk;
// otherwise only the living, and at night only werewolves.
func (g *Game) handleChat(s *Session, text string) {
	p := g.reg.Player(s)
	if text == "" {
		return
	}
	line := fmt.Sprintf("[%s] %s", p.Name, text)

	if g.reg.phase == PhaseWaiting {
		g.broadcast(MsgChat, line, s)
		return
	}
	if !p.Alive {
		g.send(s, MsgState, "You are dead and cannot talk.")
		return
	}
	if g.reg.phase == PhaseEnd {
		g.broadcast(MsgChat, line, s)
		return
	}
	if p.Role == RoleNone {
		g.send(s, MsgState, "You are not playing this round.")
		return
	}
	if g.reg.phase == PhaseNight && p.Role != RoleWerewolf {
		g.send(s, MsgState, "You can't talk at night")
		return
	}
	g.broadcast(MsgChat, line, s)
}

// handleVote handles VOTE: day votes from the living, night votes from werewolves
func (g *Game) handleVote(s *Session, target string) {
	p := g.reg.Player(s)
	switch g.reg.phase {
	case PhaseWaiting:
		g.send(s, MsgState, "The game has not started yet")
		return
	case PhaseEnd:
		g.send(s, MsgState, "The game is over. Send RESTART to play again")
		return
	}
	if p.Role == RoleNone {
		g.send(s, MsgState, "You are not playing this round.")
		return
	}
	if !p.Alive {
		g.send(s, MsgState, "You are dead and cannot vote.")
		return
	}
	if g.reg.phase == PhaseNight {
		g.handleWolfVote(s, target, true)
		return
	}
	if g.reg.await == awaitHunter {
		g.send(s, MsgState, "Wait for the hunter to take their shot")
		return
	}

	if _, ok := g.voteTarget(s, target); !ok {
		return
	}

	g.reg.RecordVote(s, target)
	g.record(p.Name, ActionDayVote, target, VisibilityPublic,
		fmt.Sprintf("%s voted for %s", p.Name, target))
	zap.L().Info("Day vote", zap.String("voter", p.Name), zap.String("target", target), zap.Int("round", g.reg.round))
	g.broadcast(MsgVote, fmt.Sprintf("%s voted for %s", p.Name, target), s)

	if g.reg.AllVoted(g.reg.Alive()) {
		g.tallyDay()
	}
}

// tallyDay eliminates the most-voted player. A tie goes against the player
// who was accused first.
func (g *Game) tallyDay() {
	target, count, tie, candidates := g.reg.tally()
	g.reg.ClearVotes()
	if count == 0 {
		g.finishDeaths(PhaseNight)
		return
	}

	if tie {
		zap.L().Info("Day vote tied", zap.Strings("candidates", candidates), zap.String("eliminated", target))
		g.broadcast(MsgChat, fmt.Sprintf("The vote is tied between %s. %s was accused first.",
			english.WordSeries(candidates, "and"), target), nil)
	}

	if ts, tp := g.reg.Lookup(target); tp != nil && tp.Alive {
		g.record("", ActionElimination, tp.Name, VisibilityPublic,
			fmt.Sprintf("%s was eliminated by the village with %s", tp.Name, english.Plural(count, "vote", "votes")))
		g.kill(ts, causeVillage)
	}
	g.finishDeaths(PhaseNight)
}

// handleHunterShoot applies the awaited hunter's revenge. Invalid targets are ignored.
func (g *Game) handleHunterShoot(s *Session, target string) {
	if g.reg.await != awaitHunter || len(g.reg.hunters) == 0 || g.reg.hunters[0] != s {
		DebugLog("handleHunterShoot", "Ignored shot from %s: not the awaited hunter", g.nameOf(s))
		return
	}
	ts, tp := g.reg.Lookup(target)
	if tp == nil || !tp.Alive || tp.Role == RoleNone || ts == s {
		DebugLog("handleHunterShoot", "Ignored shot at %q from %s", target, g.nameOf(s))
		return
	}

	hunter := g.reg.Player(s).Name
	g.reg.hunters = g.reg.hunters[1:]
	g.cancelTimer()

	g.record(hunter, ActionHunterRevenge, tp.Name, VisibilityPublic,
		fmt.Sprintf("%s shot %s with their last breath", hunter, tp.Name))
	zap.L().Info("Hunter shot", zap.String("hunter", hunter), zap.String("target", tp.Name))
	g.kill(ts, causeHunter)

	g.finishDeaths(g.reg.afterHunters)
}
