// Package userdb implements persisted player progression (spec component
// Q): the points balance and unlocked-skill-levels the original keeps in
// user_game_data/user_skills. The balance-check-then-mutate-in-one-
// transaction shape is grounded on Tutu-Engine's credit.Service.Spend
// (check balance, then write the debit/credit pair), adapted here to a
// single SQL transaction instead of a ledger, since spec §6 names two
// plain tables rather than a ledger schema.
package userdb

import (
	"database/sql"
	"errors"

	"github.com/kybird/vsurv/internal/apperr"
	"github.com/kybird/vsurv/internal/modifier"
)

// baseSpeed, baseMaxHP, baseAttack, baseCooldown, and baseArea are a fresh
// player's stats before any unlocked skill contributes a permanent bonus.
// baseAttack/baseCooldown/baseArea seed the auto-attack emitter the Room
// ticks for every player (spec §4.L step 4).
const (
	baseSpeed    = 100.0
	baseMaxHP    = 100.0
	baseAttack   = 10.0
	baseCooldown = 1.0
	baseArea     = 80.0

	// speedPerSkillLevel/maxHPPerSkillLevel/attackPerSkillLevel are flat
	// per-level bonuses every unlocked skill contributes, regardless of
	// which skill it is (skill-specific effects belong to the room's own
	// skill-cast logic, not to the persisted base stat seed).
	speedPerSkillLevel  = 2.0
	maxHPPerSkillLevel  = 10.0
	attackPerSkillLevel = 1.0
)

// ErrInsufficientPoints is returned by UnlockSkill when the user cannot
// afford the skill's cost.
var ErrInsufficientPoints = errors.New("insufficient points")

// DB wraps a database handle with the user_game_data/user_skills queries.
// Callers obtain db via dbpool.Pool.Acquire and release it when done; DB
// itself holds no lifecycle state.
type DB struct {
	conn *sql.DB
}

// New wraps an acquired *sql.DB handle.
func New(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Points returns a user's current point balance, 0 if the user has no row
// yet.
func (d *DB) Points(userID int64) (int64, error) {
	var points int64
	err := d.conn.QueryRow(`SELECT points FROM user_game_data WHERE user_id = ?`, userID).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.Persistence, err, "query points")
	}
	return points, nil
}

// SkillLevel returns a user's level in skillID, 0 if not unlocked.
func (d *DB) SkillLevel(userID, skillID int64) (int, error) {
	var level int
	err := d.conn.QueryRow(
		`SELECT level FROM user_skills WHERE user_id = ? AND skill_id = ?`,
		userID, skillID,
	).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.Persistence, err, "query skill level")
	}
	return level, nil
}

// LoadPlayerStats reads every skill the user has unlocked and builds the
// base stat map a Room seeds a fresh ModifierContainer with: a flat bonus
// per unlocked skill level on top of a fresh player's baseline.
func (d *DB) LoadPlayerStats(userID int64) (map[modifier.StatType]float64, error) {
	rows, err := d.conn.Query(`SELECT level FROM user_skills WHERE user_id = ?`, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "query skills for stat seed")
	}
	defer rows.Close()

	var totalLevels int
	for rows.Next() {
		var level int
		if err := rows.Scan(&level); err != nil {
			return nil, apperr.Wrap(apperr.Persistence, err, "scan skill level")
		}
		totalLevels += level
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "iterate skills for stat seed")
	}

	return map[modifier.StatType]float64{
		modifier.Speed:    baseSpeed + float64(totalLevels)*speedPerSkillLevel,
		modifier.MaxHP:    baseMaxHP + float64(totalLevels)*maxHPPerSkillLevel,
		modifier.Attack:   baseAttack + float64(totalLevels)*attackPerSkillLevel,
		modifier.Cooldown: baseCooldown,
		modifier.Area:     baseArea,
	}, nil
}

// AddPoints upserts a user's point balance, adding delta (can be negative).
func (d *DB) AddPoints(userID, delta int64) error {
	_, err := d.conn.Exec(
		`INSERT INTO user_game_data (user_id, points) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET points = points + excluded.points`,
		userID, delta,
	)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "add points")
	}
	return nil
}

// UnlockSkill verifies the user has at least cost points, deducts cost,
// and raises the skill to newLevel, all inside one transaction: either
// every write lands or none does. Returns ErrInsufficientPoints (not an
// apperr.Persistence failure) if the balance check fails, since that is a
// normal, expected outcome the caller answers with success=false rather
// than a DB-layer error.
func (d *DB) UnlockSkill(userID, skillID int64, cost int64, newLevel int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "begin unlock-skill transaction")
	}
	defer tx.Rollback()

	var points int64
	err = tx.QueryRow(`SELECT points FROM user_game_data WHERE user_id = ?`, userID).Scan(&points)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.Persistence, err, "query points for unlock")
	}

	if points < cost {
		return ErrInsufficientPoints
	}

	if _, err := tx.Exec(
		`INSERT INTO user_game_data (user_id, points) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET points = points - ?`,
		userID, points-cost, cost,
	); err != nil {
		return apperr.Wrap(apperr.Persistence, err, "deduct points")
	}

	if _, err := tx.Exec(
		`INSERT INTO user_skills (user_id, skill_id, level) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, skill_id) DO UPDATE SET level = excluded.level`,
		userID, skillID, newLevel,
	); err != nil {
		return apperr.Wrap(apperr.Persistence, err, "upsert skill level")
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.Persistence, err, "commit unlock-skill transaction")
	}
	return nil
}
