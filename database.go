package main

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// GameRecord is one row of the game table
type GameRecord struct {
	ID          int64      `db:"id"`
	StartedAt   time.Time  `db:"started_at"`
	EndedAt     *time.Time `db:"ended_at"`
	Winner      string     `db:"winner"` // werewolf, villager, aborted or empty while running
	PlayerCount int        `db:"player_count"`
}

// GamePlayer is the role a player held in a recorded game
type GamePlayer struct {
	GameID int64  `db:"game_id"`
	Name   string `db:"name"`
	Role   string `db:"role"`
}

// GameAction represents any action taken during the game (night or day phase)
// Visibility determines who can see this action:
//   - "public": everyone can see
//   - "team:werewolf": only werewolf team can see
//   - "actor": only the actor can see
type GameAction struct {
	ID          int64  `db:"id"`
	GameID      int64  `db:"game_id"`
	Round       int    `db:"round"`
	Phase       string `db:"phase"` // "night" or "day"
	Actor       string `db:"actor"`
	ActionType  string `db:"action_type"`
	Target      string `db:"target"`
	Visibility  string `db:"visibility"`
	Description string `db:"description"` // human-readable history entry
}

// Action types
const (
	ActionDayVote         = "day_vote"
	ActionWerewolfVote    = "werewolf_vote"
	ActionElimination     = "elimination"
	ActionWerewolfKill    = "werewolf_kill"
	ActionSeerInvestigate = "seer_investigate"
	ActionWitchHeal       = "witch_heal"
	ActionWitchKill       = "witch_kill"
	ActionWitchPass       = "witch_pass"
	ActionHunterRevenge   = "hunter_revenge"
	ActionStory           = "story"
)

// Visibility types
const (
	VisibilityPublic       = "public"
	VisibilityTeamWerewolf = "team:werewolf"
	VisibilityActor        = "actor"
)

// winnerAborted marks games ended by RESTART
const winnerAborted = "aborted"

const ledgerSchema = `
	CREATE TABLE IF NOT EXISTS game (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP,
		winner TEXT NOT NULL DEFAULT '',
		player_count INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS game_player (
		game_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		FOREIGN KEY (game_id) REFERENCES game(id),
		UNIQUE(game_id, name)
	);
	CREATE TABLE IF NOT EXISTS game_action (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id INTEGER NOT NULL,
		round INTEGER NOT NULL,
		phase TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		action_type TEXT NOT NULL,
		target TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'public',
		description TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (game_id) REFERENCES game(id)
	);
	CREATE INDEX IF NOT EXISTS idx_game_action_lookup ON game_action(game_id, visibility);
`

// Ledger records finished and running games in sqlite.
// A nil *Ledger is valid and records nothing.
type Ledger struct {
	db *sqlx.DB
}

func openLedger(dsn string) (*Ledger, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger %q: %w", dsn, err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}

// StartGame creates the game row and its roster in one transaction
func (l *Ledger) StartGame(players []GamePlayer) (int64, error) {
	if l == nil {
		return 0, nil
	}
	tx, err := l.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("start game: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO game (started_at, player_count) VALUES (?, ?)`,
		time.Now().UTC(), len(players))
	if err != nil {
		return 0, fmt.Errorf("insert game: %w", err)
	}
	gameID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("game id: %w", err)
	}
	for _, p := range players {
		if _, err := tx.Exec(`INSERT INTO game_player (game_id, name, role) VALUES (?, ?, ?)`,
			gameID, p.Name, p.Role); err != nil {
			return 0, fmt.Errorf("insert player %s: %w", p.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit game: %w", err)
	}
	return gameID, nil
}

// FinishGame stamps the winner; running games only
func (l *Ledger) FinishGame(gameID int64, winner string) error {
	if l == nil || gameID == 0 {
		return nil
	}
	_, err := l.db.Exec(`UPDATE game SET ended_at = ?, winner = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UTC(), winner, gameID)
	if err != nil {
		return fmt.Errorf("finish game %d: %w", gameID, err)
	}
	return nil
}

// Record appends one action to the history
func (l *Ledger) Record(a GameAction) error {
	if l == nil || a.GameID == 0 {
		return nil
	}
	if a.Visibility == "" {
		a.Visibility = VisibilityPublic
	}
	_, err := l.db.NamedExec(`
		INSERT INTO game_action (game_id, round, phase, actor, action_type, target, visibility, description)
		VALUES (:game_id, :round, :phase, :actor, :action_type, :target, :visibility, :description)`, a)
	if err != nil {
		return fmt.Errorf("record %s: %w", a.ActionType, err)
	}
	return nil
}

// PublicHistory returns the public descriptions of a game in order
func (l *Ledger) PublicHistory(gameID int64) ([]string, error) {
	if l == nil {
		return nil, nil
	}
	var descriptions []string
	err := l.db.Select(&descriptions, `
		SELECT description FROM game_action
		WHERE game_id = ? AND description != '' AND visibility = ?
		ORDER BY id ASC`, gameID, VisibilityPublic)
	return descriptions, err
}

// Actions returns every action of a game, regardless of visibility
func (l *Ledger) Actions(gameID int64) ([]GameAction, error) {
	if l == nil {
		return nil, nil
	}
	var actions []GameAction
	err := l.db.Select(&actions, `
		SELECT id, game_id, round, phase, actor, action_type, target, visibility, description
		FROM game_action WHERE game_id = ? ORDER BY id ASC`, gameID)
	return actions, err
}

// Game returns one game row
func (l *Ledger) Game(gameID int64) (GameRecord, error) {
	var g GameRecord
	if l == nil {
		return g, fmt.Errorf("ledger disabled")
	}
	err := l.db.Get(&g, `SELECT id, started_at, ended_at, winner, player_count FROM game WHERE id = ?`, gameID)
	return g, err
}

// Roster returns the recorded roles of a game
func (l *Ledger) Roster(gameID int64) ([]GamePlayer, error) {
	if l == nil {
		return nil, nil
	}
	var players []GamePlayer
	err := l.db.Select(&players, `SELECT game_id, name, role FROM game_player WHERE game_id = ? ORDER BY rowid`, gameID)
	return players, err
}

// dump renders every table, for the log_db diagnostic sink
func (l *Ledger) dump() string {
	var buf bytes.Buffer
	if l == nil {
		return ""
	}

	var tables []string
	if err := l.db.Select(&tables, "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name"); err != nil {
		fmt.Fprintf(&buf, "Error getting tables: %v\n", err)
		return buf.String()
	}

	for _, table := range tables {
		fmt.Fprintf(&buf, "--- Table: %s ---\n", table)

		rows, err := l.db.Queryx("SELECT * FROM " + table)
		if err != nil {
			fmt.Fprintf(&buf, "Error: %v\n\n", err)
			continue
		}
		cols, _ := rows.Columns()
		fmt.Fprintf(&buf, "Columns: %s\n", strings.Join(cols, " | "))

		rowCount := 0
		for rows.Next() {
			rowCount++
			values, err := rows.SliceScan()
			if err != nil {
				fmt.Fprintf(&buf, "Error scanning row: %v\n", err)
				continue
			}
			rowStr := make([]string, 0, len(values))
			for _, v := range values {
				switch val := v.(type) {
				case nil:
					rowStr = append(rowStr, "NULL")
				case []byte:
					rowStr = append(rowStr, string(val))
				default:
					rowStr = append(rowStr, fmt.Sprintf("%v", val))
				}
			}
			fmt.Fprintf(&buf, "Row %d: %s\n", rowCount, strings.Join(rowStr, " | "))
		}
		rows.Close()

		if rowCount == 0 {
			fmt.Fprintf(&buf, "(empty)\n")
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
