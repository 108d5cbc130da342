// Package repository is the storage-agnostic view of game state the turn
// pipeline works against, with a gorm implementation.
package repository

import (
	"context"
	"errors"
	"time"

	"stars-host/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Repository is CRUD plus the handful of predicate queries the pipeline,
// scheduler and HTTP handlers need.
type Repository interface {
	CreateGame(ctx context.Context, g *models.Game) error
	GetGame(ctx context.Context, id uint) (*models.Game, error)
	SaveGame(ctx context.Context, g *models.Game) error
	SaveOptions(ctx context.Context, o *models.GameOptions) error
	DueGames(ctx context.Context, now time.Time) ([]models.Game, error)

	ListRaces(ctx context.Context, gameID uint) ([]models.Race, error)
	CreateRace(ctx context.Context, r *models.Race) error
	SaveRace(ctx context.Context, r *models.Race) error
	ClearPlayerNumbers(ctx context.Context, gameID uint) error

	LatestTurn(ctx context.Context, gameID uint) (*models.Turn, error)
	ListTurns(ctx context.Context, gameID uint) ([]models.Turn, error)
	GetTurnByYear(ctx context.Context, gameID uint, year int) (*models.Turn, error)
	CreateTurn(ctx context.Context, t *models.Turn) error

	ListRaceTurns(ctx context.Context, turnID uint) ([]models.RaceTurn, error)
	CreateRaceTurn(ctx context.Context, rt *models.RaceTurn) error
	SaveRaceTurn(ctx context.Context, rt *models.RaceTurn) error

	CreateScores(ctx context.Context, scores []models.Score) error
	ListScores(ctx context.Context, turnID uint) ([]models.Score, error)

	CreateStarsFile(ctx context.Context, f *models.StarsFile) error
	GetStarsFile(ctx context.Context, id string) (*models.StarsFile, error)

	// Transaction runs fn against a repository bound to one transaction.
	// Returning an error rolls everything back.
	Transaction(ctx context.Context, fn func(tx Repository) error) error
}

// GormRepository implements Repository over gorm.
type GormRepository struct {
	DB *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{DB: db}
}

// AutoMigrate creates or updates every table the pipeline uses.
func (r *GormRepository) AutoMigrate() error {
	return r.DB.AutoMigrate(
		&models.StarsFile{},
		&models.Game{},
		&models.GameOptions{},
		&models.Race{},
		&models.Turn{},
		&models.RaceTurn{},
		&models.Score{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// CreateGame inserts a game together with its options.
func (r *GormRepository) CreateGame(ctx context.Context, g *models.Game) error {
	return r.DB.WithContext(ctx).Create(g).Error
}

func (r *GormRepository) GetGame(ctx context.Context, id uint) (*models.Game, error) {
	var game models.Game
	if err := r.DB.WithContext(ctx).Preload("Options").First(&game, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &game, nil
}

func (r *GormRepository) SaveGame(ctx context.Context, g *models.Game) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Save(g).Error
}

func (r *GormRepository) SaveOptions(ctx context.Context, o *models.GameOptions) error {
	return r.DB.WithContext(ctx).Save(o).Error
}

// DueGames returns active games whose next automatic generation has passed.
func (r *GormRepository) DueGames(ctx context.Context, now time.Time) ([]models.Game, error) {
	var games []models.Game
	err := r.DB.WithContext(ctx).
		Where("state = ? AND next_generation_at IS NOT NULL AND next_generation_at <= ?", models.GameStateActive, now).
		Order("id").
		Find(&games).Error
	return games, err
}

// ListRaces returns a game's races in creation order.
func (r *GormRepository) ListRaces(ctx context.Context, gameID uint) ([]models.Race, error) {
	var races []models.Race
	err := r.DB.WithContext(ctx).Where("game_id = ?", gameID).Order("id").Find(&races).Error
	return races, err
}

func (r *GormRepository) CreateRace(ctx context.Context, race *models.Race) error {
	return r.DB.WithContext(ctx).Create(race).Error
}

func (r *GormRepository) SaveRace(ctx context.Context, race *models.Race) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Save(race).Error
}

// ClearPlayerNumbers nulls every player number in a game so they can be
// reassigned without tripping the per-game unique index.
func (r *GormRepository) ClearPlayerNumbers(ctx context.Context, gameID uint) error {
	return r.DB.WithContext(ctx).Model(&models.Race{}).
		Where("game_id = ?", gameID).
		Update("player_number", nil).Error
}

// LatestTurn returns the most recent turn, or nil if the game has none.
func (r *GormRepository) LatestTurn(ctx context.Context, gameID uint) (*models.Turn, error) {
	var turns []models.Turn
	err := r.DB.WithContext(ctx).Where("game_id = ?", gameID).Order("year DESC").Limit(1).Find(&turns).Error
	if err != nil || len(turns) == 0 {
		return nil, err
	}
	return &turns[0], nil
}

// ListTurns returns turns newest first.
func (r *GormRepository) ListTurns(ctx context.Context, gameID uint) ([]models.Turn, error) {
	var turns []models.Turn
	err := r.DB.WithContext(ctx).Where("game_id = ?", gameID).Order("year DESC").Find(&turns).Error
	return turns, err
}

func (r *GormRepository) GetTurnByYear(ctx context.Context, gameID uint, year int) (*models.Turn, error) {
	var turn models.Turn
	if err := r.DB.WithContext(ctx).Where("game_id = ? AND year = ?", gameID, year).First(&turn).Error; err != nil {
		return nil, notFound(err)
	}
	return &turn, nil
}

func (r *GormRepository) CreateTurn(ctx context.Context, t *models.Turn) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Create(t).Error
}

func (r *GormRepository) ListRaceTurns(ctx context.Context, turnID uint) ([]models.RaceTurn, error) {
	var rts []models.RaceTurn
	err := r.DB.WithContext(ctx).Preload("Race").Where("turn_id = ?", turnID).Order("id").Find(&rts).Error
	return rts, err
}

func (r *GormRepository) CreateRaceTurn(ctx context.Context, rt *models.RaceTurn) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Create(rt).Error
}

func (r *GormRepository) SaveRaceTurn(ctx context.Context, rt *models.RaceTurn) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Save(rt).Error
}

func (r *GormRepository) CreateScores(ctx context.Context, scores []models.Score) error {
	if len(scores) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Create(&scores).Error
}

// ListScores returns a turn's scores ordered by race then section.
func (r *GormRepository) ListScores(ctx context.Context, turnID uint) ([]models.Score, error) {
	var scores []models.Score
	err := r.DB.WithContext(ctx).Where("turn_id = ?", turnID).Order("race_id, section").Find(&scores).Error
	return scores, err
}

func (r *GormRepository) CreateStarsFile(ctx context.Context, f *models.StarsFile) error {
	return r.DB.WithContext(ctx).Create(f).Error
}

func (r *GormRepository) GetStarsFile(ctx context.Context, id string) (*models.StarsFile, error) {
	var f models.StarsFile
	if err := r.DB.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

func (r *GormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{DB: tx})
	})
}
