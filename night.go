package main

import (
	"fmt"

	"github.com/dustin/go-humanize/english"
	"go.uber.org/zap"
)

const (
	sleepNotice       = "Night falls... You fall asleep while others act in the shadows."
	loneWolfPrompt    = "You are the only werewolf. Choose a victim with /nvote <name>"
	wolfPackPrompt    = "Werewolves, discuss with /nmsg and vote with /nvote <name>"
	quietNightMessage = "The village wakes up. Nobody died tonight."
)

// notifySleepers tells alive players without a night action to wait
func (g *Game) notifySleepers() {
	for _, s := range g.reg.Alive() {
		if role := g.reg.Player(s).Role; role == RoleVillager {
			g.send(s, MsgChat, sleepNotice)
		}
	}
}

// beginNight starts the night sequence with the seer, when one is alive
func (g *Game) beginNight() {
	if seers := g.reg.AliveWithRole(RoleSeer); len(seers) > 0 {
		g.reg.await = awaitSeer
		DebugLog("beginNight", "Night %d: waiting for the seer", g.reg.round)
		g.send(seers[0], MsgSeerAction, "")
		g.armTimer(awaitSeer)
		return
	}
	DebugLog("beginNight", "Night %d: no living seer, skipping to werewolves", g.reg.round)
	g.wolvesStep()
}

// wolvesStep prompts the living werewolves for their victim
func (g *Game) wolvesStep() {
	wolves := g.reg.AliveWithRole(RoleWerewolf)
	g.reg.ClearVotes()
	if len(wolves) == 0 {
		g.witchStep()
		return
	}
	g.reg.await = awaitWolves

	prompt := wolfPackPrompt
	if len(wolves) == 1 {
		prompt = loneWolfPrompt
	}
	zap.L().Info("Waiting for werewolves", zap.Int("count", len(wolves)), zap.Int("round", g.reg.round))
	g.multicast(wolves, MsgState, prompt, nil)
	g.armTimer(awaitWolves)
}

// handleSeerAction answers the seer and hands the night to the werewolves
func (g *Game) handleSeerAction(s *Session, target string) {
	p := g.reg.Player(s)
	if p.Role != RoleSeer || g.reg.phase != PhaseNight || g.reg.await != awaitSeer {
		g.send(s, MsgState, "You cannot use the seer's vision now")
		return
	}

	_, tp := g.reg.Lookup(target)
	if tp == nil || tp.Role == RoleNone {
		DebugLog("handleSeerAction", "Seer %s asked about unknown player %q", p.Name, target)
		return
	}

	g.send(s, MsgSeerResult, seerResultPayload(tp.Name, tp.Role))
	g.record(p.Name, ActionSeerInvestigate, tp.Name, VisibilityActor,
		fmt.Sprintf("%s investigated %s: %s", p.Name, tp.Name, tp.Role))
	zap.L().Info("Seer investigated", zap.String("seer", p.Name), zap.String("target", tp.Name))

	g.wolvesStep()
}

// handleNightVote splits NIGHT_VOTE between the witch branch and the werewolf vote
func (g *Game) handleNightVote(s *Session, payload string) {
	if isWitchPayload(payload) {
		g.handleWitchChoice(s, payload)
		return
	}
	g.handleWolfVote(s, payload, false)
}

// handleWolfVote records a werewolf's victim and resolves once every wolf voted.
// A public vote (VOTE) is announced to everyone else, a NIGHT_VOTE only to the pack.
func (g *Game) handleWolfVote(s *Session, target string, public bool) {
	p := g.reg.Player(s)
	if !p.Alive {
		g.send(s, MsgState, "You are dead and cannot vote.")
		return
	}
	if p.Role != RoleWerewolf {
		g.send(s, MsgState, "Only werewolves can vote at night")
		return
	}
	if g.reg.phase != PhaseNight || g.reg.await != awaitWolves {
		g.send(s, MsgState, "The werewolves are not choosing a victim right now")
		return
	}
	if _, ok := g.voteTarget(s, target); !ok {
		return
	}
	if target == p.Name {
		g.send(s, MsgState, "You cannot vote for yourself.")
		return
	}

	g.reg.RecordVote(s, target)
	g.record(p.Name, ActionWerewolfVote, target, VisibilityTeamWerewolf,
		fmt.Sprintf("%s voted to kill %s", p.Name, target))
	zap.L().Info("Werewolf voted", zap.String("voter", p.Name), zap.String("target", target))

	wolves := g.reg.AliveWithRole(RoleWerewolf)
	announce := fmt.Sprintf("%s voted for %s", p.Name, target)
	if public {
		g.broadcast(MsgVote, announce, s)
	} else {
		g.multicast(wolves, MsgVote, announce, s)
	}

	if g.reg.AllVoted(wolves) {
		g.resolveWolfVote(false)
	}
}

// resolveWolfVote fixes the victim from the votes cast. A split pack kills the
// player who was named first.
func (g *Game) resolveWolfVote(timedOut bool) {
	target, count, tie, candidates := g.reg.tally()
	wolves := g.reg.AliveWithRole(RoleWerewolf)
	g.reg.ClearVotes()
	g.reg.night.victim = target

	DebugLog("resolveWolfVote", "Night %d: werewolves chose %q (%d votes, timedOut=%v)", g.reg.round, target, count, timedOut)
	if tie {
		g.multicast(wolves, MsgState,
			fmt.Sprintf("Tie between %s. %s was named first", english.WordSeries(candidates, "and"), target), nil)
	}
	if target != "" {
		g.multicast(wolves, MsgState, fmt.Sprintf("The pack has chosen %s", target), nil)
	}
	g.witchStep()
}

// witchStep wakes the witch when she is alive and still holds a potion
func (g *Game) witchStep() {
	witches := g.reg.AliveWithRole(RoleWitch)
	if len(witches) == 0 || (g.reg.healUsed && g.reg.poisonUsed) {
		g.resolveNight()
		return
	}
	g.reg.await = awaitWitch
	DebugLog("witchStep", "Night %d: waiting for the witch, victim %q", g.reg.round, g.reg.night.victim)
	g.send(witches[0], MsgWitchAction, g.reg.night.victim)
	g.armTimer(awaitWitch)
}

// handleWitchChoice applies witch_save, witch_none or witch_kill:<name> and ends the night
func (g *Game) handleWitchChoice(s *Session, payload string) {
	p := g.reg.Player(s)
	if !p.Alive {
		g.send(s, MsgState, "You are dead and cannot vote.")
		return
	}
	if p.Role != RoleWitch {
		g.send(s, MsgState, "Only the witch can use potions")
		return
	}
	if g.reg.phase != PhaseNight || g.reg.await != awaitWitch {
		g.send(s, MsgState, "You cannot use a potion right now")
		return
	}

	choice, target := parseWitchPayload(payload)
	switch choice {
	case witchSave:
		if g.reg.healUsed {
			g.send(s, MsgState, "You have already used your healing potion")
			return
		}
		if g.reg.night.victim == "" {
			g.send(s, MsgState, "Nobody was attacked tonight")
			return
		}
		g.reg.healUsed = true
		g.reg.night.saved = true
		g.record(p.Name, ActionWitchHeal, g.reg.night.victim, VisibilityActor,
			fmt.Sprintf("%s saved %s", p.Name, g.reg.night.victim))
		zap.L().Info("Witch healed", zap.String("witch", p.Name), zap.String("target", g.reg.night.victim))

	case witchKill:
		if g.reg.poisonUsed {
			g.send(s, MsgState, "You have already used your poison potion")
			return
		}
		if _, ok := g.voteTarget(s, target); !ok {
			return
		}
		if target == g.reg.night.victim {
			g.send(s, MsgState, fmt.Sprintf("%s is already the werewolves' victim. Choose someone else.", target))
			return
		}
		g.reg.poisonUsed = true
		g.reg.night.poisoned = target
		g.record(p.Name, ActionWitchKill, target, VisibilityActor,
			fmt.Sprintf("%s poisoned %s", p.Name, target))
		zap.L().Info("Witch poisoned", zap.String("witch", p.Name), zap.String("target", target))

	case witchNone:
		g.record(p.Name, ActionWitchPass, "", VisibilityActor, "")

	default:
		g.send(s, MsgState, "Unknown potion. Use witch_save, witch_none or witch_kill:<name>")
		return
	}

	g.resolveNight()
}

// resolveNight applies the werewolf kill unless saved and the witch's poison
func (g *Game) resolveNight() {
	g.cancelTimer()
	g.reg.await = awaitNone
	night := g.reg.night
	died := false

	if night.victim != "" && !night.saved {
		if vs, vp := g.reg.Lookup(night.victim); vp != nil && vp.Alive {
			g.record("", ActionWerewolfKill, vp.Name, VisibilityPublic,
				fmt.Sprintf("%s was killed by werewolves during night %d", vp.Name, g.reg.round))
			g.kill(vs, causeWolves)
			died = true
		}
	}
	if night.poisoned != "" {
		if ps, pp := g.reg.Lookup(night.poisoned); pp != nil && pp.Alive {
			g.record("", ActionWitchKill, pp.Name, VisibilityPublic,
				fmt.Sprintf("%s was found poisoned after night %d", pp.Name, g.reg.round))
			g.kill(ps, causePoison)
			died = true
		}
	}
	if !died {
		g.broadcast(MsgChat, quietNightMessage, nil)
	}

	g.finishDeaths(PhaseDay)
}

// handleNightMsg relays werewolf chat to the rest of the living pack
func (g *Game) handleNightMsg(s *Session, text string) {
	p := g.reg.Player(s)
	if !p.Alive {
		g.send(s, MsgState, "You are dead and cannot talk.")
		return
	}
	if p.Role != RoleWerewolf || text == "" {
		DebugLog("handleNightMsg", "Dropped night message from %s", p.Name)
		return
	}
	g.multicast(g.reg.AliveWithRole(RoleWerewolf), MsgNightMsg, fmt.Sprintf("[%s] %s", p.Name, text), s)
}
