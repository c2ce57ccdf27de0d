package main

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// Phase is the game's macro state
type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseDay     Phase = "day"
	PhaseNight   Phase = "night"
	PhaseEnd     Phase = "end"
)

// awaitStep is the night sub-phase (or pending hunter shot) the game is blocked on
type awaitStep int

const (
	awaitNone awaitStep = iota
	awaitSeer
	awaitWolves
	awaitWitch
	awaitHunter
)

func (a awaitStep) String() string {
	switch a {
	case awaitSeer:
		return "seer"
	case awaitWolves:
		return "werewolves"
	case awaitWitch:
		return "witch"
	case awaitHunter:
		return "hunter"
	default:
		return "none"
	}
}

var (
	ErrNameTaken     = errors.New("username already taken")
	ErrEmptyName     = errors.New("username is empty")
	ErrAlreadyJoined = errors.New("connection already joined")
)

// Player is the per-connection game record
type Player struct {
	Name  string
	Role  Role
	Alive bool
}

// nightRecord collects what happened during the current night
type nightRecord struct {
	victim   string // werewolves' choice, empty if none
	saved    bool
	poisoned string
}

// Registry is the single source of truth for sessions, players, votes and phase.
// Every method expects the caller to hold the lock; the router takes it once per
// inbound message so that compound operations stay atomic.
type Registry struct {
	mu sync.Mutex

	sessions []*Session // accept order
	players  map[*Session]*Player
	votes    map[*Session]string
	ballots  []*Session // voters in order of their first vote this phase

	phase Phase
	round int
	await awaitStep
	night nightRecord

	// dead hunters still owed a shot; the head has been prompted
	hunters      []*Session
	afterHunters Phase

	healUsed   bool
	poisonUsed bool

	gameID   int64
	timer    *time.Timer
	timerGen uint64
}

func NewRegistry() *Registry {
	return &Registry{
		players: make(map[*Session]*Player),
		votes:   make(map[*Session]string),
		phase:   PhaseWaiting,
	}
}

// Lock acquires the registry lock
func (r *Registry) Lock() {
	r.mu.Lock()
}

// Unlock releases the registry lock
func (r *Registry) Unlock() {
	r.mu.Unlock()
}

// Connect tracks a freshly accepted connection
func (r *Registry) Connect(s *Session) {
	for _, existing := range r.sessions {
		if existing == s {
			return
		}
	}
	r.sessions = append(r.sessions, s)
}

// Join claims a username for s
func (r *Registry) Join(s *Session, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if _, ok := r.players[s]; ok {
		return ErrAlreadyJoined
	}
	for _, p := range r.players {
		if p.Name == name {
			return ErrNameTaken
		}
	}
	r.Connect(s)
	r.players[s] = &Player{Name: name, Alive: true}
	return nil
}

// Remove evicts s from every map. Safe for connections that never joined.
// Returns the removed player, or nil.
func (r *Registry) Remove(s *Session) *Player {
	for i, existing := range r.sessions {
		if existing == s {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			break
		}
	}
	for i, h := range r.hunters {
		if h == s {
			r.hunters = append(r.hunters[:i], r.hunters[i+1:]...)
			break
		}
	}
	p := r.players[s]
	delete(r.players, s)
	r.dropVote(s)
	if p != nil {
		for _, v := range r.votersFor(p.Name) {
			r.dropVote(v)
		}
	}
	return p
}

// Sessions returns every connection in accept order
func (r *Registry) Sessions() []*Session {
	return append([]*Session(nil), r.sessions...)
}

// Player returns the record for s, or nil if s has not joined
func (r *Registry) Player(s *Session) *Player {
	return r.players[s]
}

// Lookup finds a joined player by exact username
func (r *Registry) Lookup(name string) (*Session, *Player) {
	for s, p := range r.players {
		if p.Name == name {
			return s, p
		}
	}
	return nil, nil
}

// Joined returns joined sessions in accept order
func (r *Registry) Joined() []*Session {
	var out []*Session
	for _, s := range r.sessions {
		if _, ok := r.players[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// InGame returns sessions holding a role, in accept order
func (r *Registry) InGame() []*Session {
	var out []*Session
	for _, s := range r.sessions {
		if p, ok := r.players[s]; ok && p.Role != RoleNone {
			out = append(out, s)
		}
	}
	return out
}

// Alive returns sessions of living players holding a role
func (r *Registry) Alive() []*Session {
	var out []*Session
	for _, s := range r.InGame() {
		if r.players[s].Alive {
			out = append(out, s)
		}
	}
	return out
}

// AliveWithRole returns living players holding role
func (r *Registry) AliveWithRole(role Role) []*Session {
	var out []*Session
	for _, s := range r.Alive() {
		if r.players[s].Role == role {
			out = append(out, s)
		}
	}
	return out
}

// aliveCounts returns living werewolves and living everyone-else
func (r *Registry) aliveCounts() (wolves, others int) {
	for _, s := range r.Alive() {
		if r.players[s].Role.Team() == TeamWerewolf {
			wolves++
		} else {
			others++
		}
	}
	return wolves, others
}

// Names returns the usernames of sessions, in the given order
func (r *Registry) Names(sessions []*Session) []string {
	names := make([]string, 0, len(sessions))
	for _, s := range sessions {
		if p := r.players[s]; p != nil {
			names = append(names, p.Name)
		}
	}
	return names
}

// RecordVote stores (or overwrites) the vote of s for the current phase.
// A changed vote keeps the voter's place in the ballot order.
func (r *Registry) RecordVote(s *Session, target string) {
	if _, ok := r.votes[s]; !ok {
		r.ballots = append(r.ballots, s)
	}
	r.votes[s] = target
}

// ClearVotes empties the vote ledger
func (r *Registry) ClearVotes() {
	clear(r.votes)
	r.ballots = r.ballots[:0]
}

func (r *Registry) dropVote(s *Session) {
	if _, ok := r.votes[s]; !ok {
		return
	}
	delete(r.votes, s)
	for i, b := range r.ballots {
		if b == s {
			r.ballots = append(r.ballots[:i], r.ballots[i+1:]...)
			break
		}
	}
}

// votersFor lists, in ballot order, the sessions whose vote names target
func (r *Registry) votersFor(target string) []*Session {
	var voters []*Session
	for _, s := range r.ballots {
		if r.votes[s] == target {
			voters = append(voters, s)
		}
	}
	return voters
}

// AllVoted reports whether every eligible session has a vote recorded.
// With nobody eligible it is vacuously true.
func (r *Registry) AllVoted(eligible []*Session) bool {
	for _, s := range eligible {
		if _, ok := r.votes[s]; !ok {
			return false
		}
	}
	return true
}

// pruneVotes drops votes from sessions that are no longer eligible
func (r *Registry) pruneVotes(eligible []*Session) {
	keep := make(map[*Session]bool, len(eligible))
	for _, s := range eligible {
		keep[s] = true
	}
	for _, s := range append([]*Session(nil), r.ballots...) {
		if !keep[s] {
			r.dropVote(s)
		}
	}
}

// tally picks the most-voted target. Among targets sharing the top count the one
// that received the earliest ballot wins; tie reports that there were several,
// and candidates lists them in that order.
func (r *Registry) tally() (target string, count int, tie bool, candidates []string) {
	counts := make(map[string]int)
	var order []string
	for _, s := range r.ballots {
		t := r.votes[s]
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}
	for _, t := range order {
		switch c := counts[t]; {
		case c > count:
			count = c
			candidates = []string{t}
		case c == count:
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return "", 0, false, nil
	}
	return candidates[0], count, len(candidates) > 1, candidates
}

// resetGame forgets roles, deaths and night state, keeping joined usernames
func (r *Registry) resetGame() {
	for _, p := range r.players {
		p.Role = RoleNone
		p.Alive = true
	}
	r.ClearVotes()
	r.round = 0
	r.await = awaitNone
	r.night = nightRecord{}
	r.hunters = nil
	r.afterHunters = ""
	r.healUsed = false
	r.poisonUsed = false
	r.gameID = 0
}

// RegistryStatus is a point-in-time view for diagnostics
type RegistryStatus struct {
	Phase       Phase  `json:"phase"`
	Round       int    `json:"round"`
	Awaiting    string `json:"awaiting"`
	Connections int    `json:"connections"`
	Players     int    `json:"players"`
	Alive       int    `json:"alive"`
}

// Status takes the lock itself; do not call it while holding the lock.
func (r *Registry) Status() RegistryStatus {
	r.Lock()
	defer r.Unlock()
	return RegistryStatus{
		Phase:       r.phase,
		Round:       r.round,
		Awaiting:    r.await.String(),
		Connections: len(r.sessions),
		Players:     len(r.players),
		Alive:       len(r.Alive()),
	}
}
