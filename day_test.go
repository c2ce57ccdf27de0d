package main

import (
	"fmt"
	"strings"
	"testing"
	"testing/quick"
)

// ============================================================================
// Day Phase Test Helpers
// ============================================================================

// setupDayPhaseGame joins one player per role and opens the first day
func setupDayPhaseGame(ctx *TestContext, roles ...Role) []*TestPlayer {
	names := make([]string, len(roles))
	for i := range roles {
		names[i] = fmt.Sprintf("D%d", i+1)
	}
	players := ctx.joinPlayers(names...)
	ctx.rigRoles(players, roles...)
	ctx.setPhase(PhaseDay)
	clearInboxes(players...)
	ctx.logger.LogDB("after setupDayPhaseGame")
	return players
}

// dayVoteAll makes every player vote for target, in order
func dayVoteAll(players []*TestPlayer, target string) {
	for _, tp := range players {
		tp.do(MsgVote, target)
	}
}

// ============================================================================
// Day Phase Tests
// ============================================================================

func TestDayVoteTransitionToNight(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	ctx.logger.Debug("=== Testing unanimous day vote ===")

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleSeer, RoleVillager, RoleVillager, RoleVillager)
	target := players[2]

	dayVoteAll(players, target.Name)

	if target.isAlive() {
		ctx.logger.LogDB("FAIL: target survived")
		t.Fatalf("%s should be eliminated", target.Name)
	}
	for _, tp := range players {
		if !tp.received(MsgKill, target.Name) {
			t.Errorf("%s should receive KILL|%s, got %v", tp.Name, target.Name, tp.inbox)
		}
		if !tp.received(MsgState, string(PhaseNight)) {
			t.Errorf("%s should be told it is night", tp.Name)
		}
	}
	if !target.received(MsgState, causeVillage.notice()) {
		t.Errorf("victim should be told how they died, got %v", target.inbox)
	}
	if ctx.phase() != PhaseNight {
		t.Errorf("phase = %s, want night", ctx.phase())
	}

	elim := ctx.actionsOfType(ActionElimination)
	if len(elim) != 1 || elim[0].Target != target.Name || elim[0].Visibility != VisibilityPublic {
		t.Errorf("elimination ledger = %+v", elim)
	}

	ctx.logger.Debug("=== Test passed ===")
}

func TestDayVoteIsRelayedAndCanChange(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleVillager, RoleVillager, RoleVillager, RoleVillager)
	voter := players[1]

	voter.do(MsgVote, "D3")
	voter.do(MsgVote, "D4")
	voter.do(MsgVote, "D4")

	if !players[0].received(MsgVote, "D2 voted for D3") || !players[0].received(MsgVote, "D2 voted for D4") {
		t.Errorf("votes should be relayed, got %v", players[0].inbox)
	}
	if voter.received(MsgVote, "D2 voted for D3") {
		t.Errorf("voter should not receive their own VOTE")
	}

	ctx.game.reg.Lock()
	target, count, tie, _ := ctx.game.reg.tally()
	nVotes := len(ctx.game.reg.votes)
	ctx.game.reg.Unlock()
	if nVotes != 1 || target != "D4" || count != 1 || tie {
		t.Errorf("repeated votes should keep one entry for D4, got %d votes, %s x%d tie=%v", nVotes, target, count, tie)
	}
}

func TestTiedDayVoteEliminatesFirstAccused(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleVillager, RoleVillager, RoleVillager)

	players[0].do(MsgVote, "D2")
	players[1].do(MsgVote, "D1")
	players[2].do(MsgVote, "D1")
	players[3].do(MsgVote, "D2")

	if players[1].isAlive() || !players[0].isAlive() {
		t.Fatalf("D2 was accused first and should fall: D1 alive=%v D2 alive=%v", players[0].isAlive(), players[1].isAlive())
	}
	if !players[3].received(MsgChat, "The vote is tied between D2 and D1. D2 was accused first.") {
		t.Errorf("tie should be announced, got %v", players[3].inbox)
	}
	if !players[3].received(MsgKill, "D2") {
		t.Errorf("KILL|D2 expected, got %v", players[3].inbox)
	}
	if ctx.phase() != PhaseNight {
		t.Errorf("phase = %s, want night", ctx.phase())
	}
}

func TestTieBreakFollowsFirstBallotNotName(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleVillager, RoleVillager, RoleVillager, RoleVillager, RoleVillager)

	// D1 votes first and then changes to D5; the changed vote keeps its place
	players[0].do(MsgVote, "D4")
	players[0].do(MsgVote, "D5")
	players[1].do(MsgVote, "D4")
	players[2].do(MsgVote, "D5")
	players[3].do(MsgVote, "D4")
	players[4].do(MsgVote, "D6")
	players[5].do(MsgVote, "D6")

	if players[4].isAlive() || !players[3].isAlive() || !players[5].isAlive() {
		t.Errorf("three-way tie should go to D5: D4 alive=%v D5 alive=%v D6 alive=%v",
			players[3].isAlive(), players[4].isAlive(), players[5].isAlive())
	}
	if !players[0].received(MsgChat, "The vote is tied between D5, D4 and D6. D5 was accused first.") {
		t.Errorf("tie announcement = %v", players[0].inbox)
	}
}

func TestDeadPlayerIsSilent(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	ctx.logger.Debug("=== Testing that dead players cannot act ===")

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleWerewolf, RoleVillager, RoleVillager, RoleVillager, RoleVillager, RoleVillager)
	dead := players[2]
	dayVoteAll(players, dead.Name)
	if dead.isAlive() {
		t.Fatalf("%s should be dead", dead.Name)
	}

	// Back to day for the checks
	ctx.setPhase(PhaseDay)
	clearInboxes(players...)

	dead.do(MsgChat, "boo")
	if !dead.received(MsgState, "You are dead and cannot talk.") {
		t.Errorf("dead chat should be refused, got %v", dead.inbox)
	}
	dead.do(MsgVote, "D1")
	if !dead.received(MsgState, "You are dead and cannot vote.") {
		t.Errorf("dead vote should be refused, got %v", dead.inbox)
	}
	dead.do(MsgNightMsg, "psst")
	dead.do(MsgHunterShoot, "D1")

	for _, tp := range players {
		if tp == dead {
			continue
		}
		for _, line := range tp.drain() {
			if strings.Contains(line, dead.Name) {
				ctx.logger.LogDB("FAIL: dead player reached others")
				t.Errorf("%s received %q from a dead player", tp.Name, line)
			}
		}
	}

	ctx.game.reg.Lock()
	_, voted := ctx.game.reg.votes[dead.s]
	ctx.game.reg.Unlock()
	if voted {
		t.Errorf("dead vote must not be recorded")
	}

	// The dead stay silent once the game is over
	ctx.setPhase(PhaseEnd)
	clearInboxes(players...)
	dead.do(MsgChat, "ghost talk")
	if !dead.received(MsgState, "You are dead and cannot talk.") {
		t.Errorf("dead chat after the game should be refused, got %v", dead.inbox)
	}
	if players[0].receivedContaining(MsgChat, "ghost talk") {
		t.Errorf("dead chat after the game reached %s", players[0].Name)
	}

	ctx.logger.Debug("=== Test passed ===")
}

func TestDeadStaySilentAfterGameEnds(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleWerewolf, RoleVillager, RoleVillager, RoleVillager)
	dayVoteAll(players, "D3")
	if ctx.phase() != PhaseEnd || players[2].isAlive() {
		t.Fatalf("parity should end the game with D3 dead, phase %s", ctx.phase())
	}
	clearInboxes(players...)

	players[2].do(MsgChat, "ghost talk")
	if !players[2].received(MsgState, "You are dead and cannot talk.") {
		t.Errorf("dead D3 should be refused, got %v", players[2].inbox)
	}
	if players[0].receivedContaining(MsgChat, "ghost talk") {
		t.Errorf("D1 heard a dead player: %v", players[0].inbox)
	}

	players[3].do(MsgChat, "good game")
	if !players[0].received(MsgChat, "[D4] good game") {
		t.Errorf("the living may still talk after the game, got %v", players[0].inbox)
	}
}

func TestCannotVoteForDeadOrUnknownPlayer(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleVillager, RoleVillager, RoleVillager, RoleVillager, RoleVillager)
	dayVoteAll(players, "D6")
	ctx.setPhase(PhaseDay)
	clearInboxes(players...)

	players[0].do(MsgVote, "D6")
	if !players[0].received(MsgState, "D6 is dead. Choose a living player.") {
		t.Errorf("vote for dead player should be refused, got %v", players[0].inbox)
	}
	players[0].do(MsgVote, "nobody")
	if !players[0].received(MsgState, "Player nobody does not exist.") {
		t.Errorf("vote for unknown player should be refused, got %v", players[0].inbox)
	}
}

func TestVoteOutsideGameIsRejected(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	players := ctx.joinPlayers("O1", "O2")
	players[0].do(MsgVote, "O2")
	if !players[0].received(MsgState, "The game has not started yet") {
		t.Errorf("lobby vote should be refused, got %v", players[0].inbox)
	}
}

func TestDayChatReachesEveryoneElse(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleVillager, RoleVillager, RoleVillager, RoleVillager)
	players[1].do(MsgChat, "I suspect D1")

	for _, tp := range players {
		got := tp.received(MsgChat, "[D2] I suspect D1")
		if tp == players[1] && got {
			t.Errorf("sender should not receive their own message")
		}
		if tp != players[1] && !got {
			t.Errorf("%s should receive the chat, got %v", tp.Name, tp.inbox)
		}
	}
}

func TestVillagersWinByEliminatingWerewolf(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleSeer, RoleVillager, RoleVillager, RoleVillager)
	dayVoteAll(players, "D1")

	if ctx.phase() != PhaseEnd {
		t.Fatalf("phase = %s, want end", ctx.phase())
	}
	for _, tp := range players {
		if !tp.received(MsgState, "villagers_win") {
			t.Errorf("%s should be told the villagers won", tp.Name)
		}
		if !tp.receivedContaining(MsgChat, "The villagers win! The werewolves (D1) have been eliminated.") {
			t.Errorf("%s should see the reveal, got %v", tp.Name, tp.inbox)
		}
		if !tp.receivedContaining(MsgChat, "D2 (seer)") {
			t.Errorf("%s should see every role revealed", tp.Name)
		}
		if tp.received(MsgState, string(PhaseNight)) {
			t.Errorf("no night after the game ended")
		}
	}

	rec, err := ctx.ledger.Game(ctx.gameID())
	if err != nil || rec.Winner != TeamVillager {
		ctx.logger.LogDB("FAIL: winner not recorded")
		t.Errorf("ledger game = %+v, %v", rec, err)
	}
}

func TestWerewolvesWinOnParity(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleWerewolf, RoleVillager, RoleVillager, RoleVillager)
	dayVoteAll(players, "D3")

	if ctx.phase() != PhaseEnd {
		t.Fatalf("phase = %s, want end", ctx.phase())
	}
	if !players[4].received(MsgState, "werewolves_win") {
		t.Errorf("2 werewolves vs 2 villagers should be a werewolf win, got %v", players[4].inbox)
	}
	if !players[4].receivedContaining(MsgChat, "The werewolves win! D1 and D2 now outnumber the village.") {
		t.Errorf("reveal should name the pack, got %v", players[4].inbox)
	}
}

func TestWinConditionMonotonicity(t *testing.T) {
	f := func(rawWolves, rawOthers uint8) bool {
		ctx := newTestContext(t)
		defer ctx.cleanup()

		wolves := int(rawWolves % 3)
		others := int(rawOthers%5) + 1
		var roles []Role
		for range wolves {
			roles = append(roles, RoleWerewolf)
		}
		for range others {
			roles = append(roles, RoleVillager)
		}
		players := setupDayPhaseGame(ctx, roles...)

		g := ctx.game
		g.reg.Lock()
		defer g.reg.Unlock()

		ended := g.checkWinConditions()
		wantEnd := wolves == 0 || wolves >= others
		if ended != wantEnd {
			t.Errorf("%d wolves vs %d others: ended=%v, want %v", wolves, others, ended, wantEnd)
			return false
		}
		if !ended {
			return true
		}

		// Once decided, further deaths never reopen or flip the result
		before := len(players[0].drain())
		for _, tp := range players {
			g.kill(tp.s, causeVillage)
			if g.checkWinConditions() {
				t.Errorf("win re-evaluated after the game ended")
				return false
			}
		}
		if g.reg.phase != PhaseEnd {
			t.Errorf("phase left end: %s", g.reg.phase)
			return false
		}
		for _, line := range players[0].drain() {
			if strings.HasSuffix(line, "_win") {
				t.Errorf("second result announced after %d frames: %q", before, line)
				return false
			}
		}
		return true
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 10}); err != nil {
		t.Error(err)
	}
}

// ============================================================================
// Hunter Tests
// ============================================================================

func TestHunterDeathShotOnDayElimination(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	ctx.logger.Debug("=== Testing hunter revenge after day elimination ===")

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleHunter, RoleVillager, RoleVillager, RoleVillager, RoleVillager)
	hunter := players[1]

	dayVoteAll(players, hunter.Name)

	if !hunter.received(MsgHunterShoot, "") {
		t.Fatalf("hunter should be prompted, got %v", hunter.inbox)
	}
	if ctx.phase() != PhaseDay || ctx.awaiting() != awaitHunter {
		t.Fatalf("game should wait for the hunter in day, got %s/%s", ctx.phase(), ctx.awaiting())
	}

	// Nobody else moves while the hunter aims
	players[3].do(MsgVote, "D1")
	if !players[3].received(MsgState, "Wait for the hunter to take their shot") {
		t.Errorf("votes should wait for the hunter, got %v", players[3].inbox)
	}
	players[0].do(MsgHunterShoot, "D3")
	if !players[2].isAlive() {
		t.Fatalf("only the awaited hunter may shoot")
	}

	hunter.do(MsgHunterShoot, "D3")

	if players[2].isAlive() {
		t.Fatalf("D3 should be shot")
	}
	if !players[4].received(MsgKill, "D3") {
		t.Errorf("shot should be broadcast, got %v", players[4].inbox)
	}
	if !players[2].received(MsgState, causeHunter.notice()) {
		t.Errorf("victim should be told the hunter shot them")
	}
	if ctx.phase() != PhaseNight {
		t.Errorf("phase = %s, want night", ctx.phase())
	}

	rev := ctx.actionsOfType(ActionHunterRevenge)
	if len(rev) != 1 || rev[0].Actor != hunter.Name || rev[0].Target != "D3" {
		t.Errorf("revenge ledger = %+v", rev)
	}

	ctx.logger.Debug("=== Test passed ===")
}

func TestHunterShootsLastWerewolf(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleHunter, RoleVillager, RoleVillager, RoleVillager)
	hunter := players[1]
	dayVoteAll(players, hunter.Name)

	// With the hunter dead it is 1 vs 3, no winner yet
	if ctx.phase() != PhaseDay {
		t.Fatalf("phase = %s, want day", ctx.phase())
	}

	hunter.do(MsgHunterShoot, "D1")

	if players[0].isAlive() {
		t.Fatalf("werewolf should be shot before the win check")
	}
	if ctx.phase() != PhaseEnd || !players[2].received(MsgState, "villagers_win") {
		t.Errorf("villagers should win, phase %s", ctx.phase())
	}
}

func TestHunterShotChainsToAnotherHunter(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleHunter, RoleHunter, RoleVillager, RoleVillager, RoleVillager, RoleVillager)
	first, second := players[1], players[2]
	dayVoteAll(players, first.Name)

	first.do(MsgHunterShoot, second.Name)
	if second.isAlive() {
		t.Fatalf("second hunter should be shot")
	}
	if !second.received(MsgHunterShoot, "") || ctx.awaiting() != awaitHunter {
		t.Fatalf("second hunter should be prompted in turn, got %v", second.inbox)
	}
	if ctx.phase() != PhaseDay {
		t.Fatalf("phase = %s, the chain is not finished", ctx.phase())
	}

	second.do(MsgHunterShoot, "D4")
	if players[3].isAlive() {
		t.Errorf("D4 should be shot by the second hunter")
	}
	if ctx.phase() != PhaseNight {
		t.Errorf("phase = %s, want night after the chain", ctx.phase())
	}
}

func TestHunterInvalidShotIsIgnored(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleHunter, RoleVillager, RoleVillager, RoleVillager, RoleVillager)
	hunter := players[1]
	dayVoteAll(players, hunter.Name)

	for _, target := range []string{"nobody", hunter.Name, ""} {
		hunter.do(MsgHunterShoot, target)
		if ctx.awaiting() != awaitHunter {
			t.Fatalf("shot at %q should be ignored", target)
		}
	}
	for _, tp := range players[2:] {
		if !tp.isAlive() {
			t.Errorf("%s died from an invalid shot", tp.Name)
		}
	}
}

func TestHunterLeavingSkipsTheShot(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	players := setupDayPhaseGame(ctx, RoleWerewolf, RoleHunter, RoleVillager, RoleVillager, RoleVillager, RoleVillager)
	hunter := players[1]
	dayVoteAll(players, hunter.Name)

	hunter.leave()

	if ctx.awaiting() == awaitHunter {
		t.Errorf("game should stop waiting for a hunter that left")
	}
	if ctx.phase() != PhaseNight {
		t.Errorf("phase = %s, want night", ctx.phase())
	}
}
