package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stars-host/models"
	"stars-host/repository"
	"stars-host/starsfile"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const maxRaceName = 15

// TurnService drives a game through the engine: activation creates the
// universe and the first turn, generation produces every turn after that.
type TurnService struct {
	repo      repository.Repository
	files     *StarsFileService
	workspace *WorkspaceManager
	engine    *EngineInvoker
	collector *OutputCollector
	scores    *ScoreReconciler
	log       *zap.Logger

	flight singleflight.Group
	locks  gameLocks
	now    func() time.Time
}

func NewTurnService(
	repo repository.Repository,
	files *StarsFileService,
	workspace *WorkspaceManager,
	engine *EngineInvoker,
	collector *OutputCollector,
	scores *ScoreReconciler,
	log *zap.Logger,
) *TurnService {
	return &TurnService{
		repo:      repo,
		files:     files,
		workspace: workspace,
		engine:    engine,
		collector: collector,
		scores:    scores,
		log:       log,
		now:       time.Now,
	}
}

// Run activates a game in setup and generates a turn for an active or
// paused one.
func (s *TurnService) Run(ctx context.Context, gameID uint) (*models.Turn, error) {
	return s.exclusive("run", gameID, func() (*models.Turn, error) {
		game, err := s.loadGame(ctx, gameID)
		if err != nil {
			return nil, err
		}
		switch {
		case game.CanActivate():
			return s.activate(ctx, game)
		case game.CanGenerate():
			return s.generate(ctx, game)
		}
		return nil, &InvalidStateError{GameID: game.ID, State: game.State, Op: "run"}
	})
}

// Activate numbers the players, creates the universe and records turn zero.
func (s *TurnService) Activate(ctx context.Context, gameID uint) (*models.Turn, error) {
	return s.exclusive("activate", gameID, func() (*models.Turn, error) {
		game, err := s.loadGame(ctx, gameID)
		if err != nil {
			return nil, err
		}
		return s.activate(ctx, game)
	})
}

// Generate runs the engine over the current turn and records the next one.
func (s *TurnService) Generate(ctx context.Context, gameID uint) (*models.Turn, error) {
	return s.exclusive("generate", gameID, func() (*models.Turn, error) {
		game, err := s.loadGame(ctx, gameID)
		if err != nil {
			return nil, err
		}
		return s.generate(ctx, game)
	})
}

// exclusive collapses concurrent calls of the same operation on one game
// into a single attempt and serializes different operations on that game.
func (s *TurnService) exclusive(op string, gameID uint, fn func() (*models.Turn, error)) (*models.Turn, error) {
	v, err, shared := s.flight.Do(fmt.Sprintf("%s:%d", op, gameID), func() (any, error) {
		defer s.locks.lock(gameID)()
		return fn()
	})
	if shared {
		s.log.Debug("joined in-flight operation", zap.String("op", op), zap.Uint("game_id", gameID))
	}
	turn, _ := v.(*models.Turn)
	return turn, err
}

// gameLocks hands out one mutex per game. Entries live only while someone
// holds or waits for them.
type gameLocks struct {
	mu sync.Mutex
	m  map[uint]*gameLock
}

type gameLock struct {
	sync.Mutex
	refs int
}

func (l *gameLocks) lock(gameID uint) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[uint]*gameLock)
	}
	gl, ok := l.m[gameID]
	if !ok {
		gl = &gameLock{}
		l.m[gameID] = gl
	}
	gl.refs++
	l.mu.Unlock()

	gl.Lock()
	return func() {
		gl.Unlock()
		l.mu.Lock()
		if gl.refs--; gl.refs == 0 {
			delete(l.m, gameID)
		}
		l.mu.Unlock()
	}
}

func (l *gameLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (s *TurnService) loadGame(ctx context.Context, gameID uint) (*models.Game, error) {
	game, err := s.repo.GetGame(ctx, gameID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("game %d: %w", gameID, ErrGameNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game %d: %w", gameID, err)
	}
	return game, nil
}

func (s *TurnService) openFile(ctx context.Context, id string) ([]byte, error) {
	f, err := s.repo.GetStarsFile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("stars file %s: %w", id, err)
	}
	return s.files.Open(ctx, f)
}

func writeWorkspace(workspace, name string, data []byte) error {
	path := filepath.Join(workspace, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &WorkspaceError{Path: path, Err: err}
	}
	return nil
}

func truncateName(s string) string {
	r := []rune(s)
	if len(r) > maxRaceName {
		return string(r[:maxRaceName])
	}
	return s
}

func (s *TurnService) activate(ctx context.Context, game *models.Game) (*models.Turn, error) {
	if !game.CanActivate() {
		return nil, &InvalidStateError{GameID: game.ID, State: game.State, Op: "activate"}
	}
	log := s.log.With(zap.Uint("game_id", game.ID))

	races, err := s.repo.ListRaces(ctx, game.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list races: %w", err)
	}

	ws, err := s.workspace.Acquire(game.ID)
	if err != nil {
		return nil, err
	}
	defer s.workspace.Release(ws)
	log = log.With(zap.String("workspace", ws))

	var newFiles []*models.StarsFile
	next := 0
	for i := range races {
		r := &races[i]
		if r.RaceFileID == nil {
			r.PlayerNumber = nil
			continue
		}
		n := next
		r.PlayerNumber = &n
		next++

		upload, err := s.repo.GetStarsFile(ctx, *r.RaceFileID)
		if err != nil {
			return nil, fmt.Errorf("race %d file: %w", r.ID, err)
		}
		official, data, err := s.files.Snapshot(ctx, upload)
		if err != nil {
			return nil, err
		}
		r.OfficialRaceFileID = &official.ID
		newFiles = append(newFiles, official)
		if err := writeWorkspace(ws, fmt.Sprintf("race.r%d", r.Number()), data); err != nil {
			return nil, err
		}
	}

	text, err := RenderConfig(game, races, s.engine.PathPrefix(ws))
	if err != nil {
		return nil, err
	}
	if err := WriteConfig(ws, text); err != nil {
		return nil, err
	}

	if _, err := s.engine.Run(ctx, ModeActivate, ws); err != nil {
		return nil, err
	}

	host, year, err := s.collectHost(ws, nil)
	if err != nil {
		return nil, err
	}
	mapFile, err := s.collector.CollectOne(ws, MapPattern, starsfile.KindMap)
	if err != nil {
		return nil, err
	}

	newRaces := s.reconcileRaces(game, races, host.File.Races(), log)
	all := append(append([]models.Race(nil), races...), newRaces...)

	out, err := s.collectTurn(ctx, ws, host, year, all)
	if err != nil {
		return nil, err
	}
	storedMap, err := s.files.Store(ctx, mapFile.Data, models.FileTypeMap, nil)
	if err != nil {
		return nil, err
	}
	newFiles = append(newFiles, storedMap)
	newFiles = append(newFiles, out.files()...)

	game.State = models.GameStateActive
	game.MapFileID = &storedMap.ID
	game.Options.FileContents = text
	s.scheduleNext(game)

	var turn *models.Turn
	err = s.repo.Transaction(ctx, func(tx repository.Repository) error {
		if err := createFiles(ctx, tx, newFiles); err != nil {
			return err
		}
		if err := tx.SaveGame(ctx, game); err != nil {
			return err
		}
		if err := tx.SaveOptions(ctx, &game.Options); err != nil {
			return err
		}
		if err := tx.ClearPlayerNumbers(ctx, game.ID); err != nil {
			return err
		}
		for i := range races {
			if err := tx.SaveRace(ctx, &races[i]); err != nil {
				return err
			}
		}
		for i := range newRaces {
			if err := tx.CreateRace(ctx, &newRaces[i]); err != nil {
				return err
			}
		}
		committed := append(append([]models.Race(nil), races...), newRaces...)
		turn, err = s.persistTurn(ctx, tx, game, out, committed)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit activation: %w", err)
	}

	log.Info("✅ game activated",
		zap.Int("year", turn.Year),
		zap.Int("players", next),
		zap.Int("ai_players", len(newRaces)))
	return turn, nil
}

// reconcileRaces brings stored races in line with the races the engine
// reports. Renamed human races are updated in place; player slots with no
// race become new AI races, which are returned.
func (s *TurnService) reconcileRaces(game *models.Game, races []models.Race, reported []*starsfile.PlayerRace, log *zap.Logger) []models.Race {
	byPlayer := make(map[int]*models.Race, len(races))
	for i := range races {
		if races[i].PlayerNumber != nil {
			byPlayer[*races[i].PlayerNumber] = &races[i]
		}
	}

	var created []models.Race
	for _, pr := range reported {
		player := int(pr.Player)
		name, plural := truncateName(pr.Name), truncateName(pr.PluralName)
		if plural == "" {
			plural = truncateName(pr.Name + "s")
		}

		if r, ok := byPlayer[player]; ok {
			if name != r.Name || plural != r.PluralName {
				log.Info("engine renamed race",
					zap.Int("player", player),
					zap.String("from", r.Name),
					zap.String("to", name))
				r.Name = name
				r.PluralName = plural
			}
			continue
		}

		p := player
		created = append(created, models.Race{
			GameID:       game.ID,
			Name:         name,
			PluralName:   plural,
			PlayerNumber: &p,
			IsAI:         true,
		})
		log.Info("🤖 adding computer player", zap.Int("player", player), zap.String("race", name))
	}
	return created
}

func (s *TurnService) generate(ctx context.Context, game *models.Game) (*models.Turn, error) {
	if !game.CanGenerate() {
		return nil, &InvalidStateError{GameID: game.ID, State: game.State, Op: "generate"}
	}
	log := s.log.With(zap.Uint("game_id", game.ID))

	prev, err := s.repo.LatestTurn(ctx, game.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current turn: %w", err)
	}
	if prev == nil {
		return nil, &InvalidStateError{GameID: game.ID, State: game.State, Op: "generate", Reason: "game has no turns"}
	}
	if game.MapFileID == nil {
		return nil, &InvalidStateError{GameID: game.ID, State: game.State, Op: "generate", Reason: "game has no map file"}
	}

	ws, err := s.workspace.Acquire(game.ID)
	if err != nil {
		return nil, err
	}
	defer s.workspace.Release(ws)
	log = log.With(zap.String("workspace", ws))

	hostData, err := s.openFile(ctx, prev.HostFileID)
	if err != nil {
		return nil, err
	}
	if err := writeWorkspace(ws, HostFileName, hostData); err != nil {
		return nil, err
	}
	mapData, err := s.openFile(ctx, *game.MapFileID)
	if err != nil {
		return nil, err
	}
	if err := writeWorkspace(ws, "game.xy", mapData); err != nil {
		return nil, err
	}

	raceTurns, err := s.repo.ListRaceTurns(ctx, prev.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list race turns: %w", err)
	}
	var (
		newFiles  []*models.StarsFile
		submitted []*models.RaceTurn
	)
	for i := range raceTurns {
		rt := &raceTurns[i]
		if rt.OrdersFileID == nil || rt.Race == nil {
			continue
		}
		orders, err := s.repo.GetStarsFile(ctx, *rt.OrdersFileID)
		if err != nil {
			return nil, fmt.Errorf("race turn %d orders: %w", rt.ID, err)
		}
		official, data, err := s.files.Snapshot(ctx, orders)
		if err != nil {
			return nil, err
		}
		rt.OfficialOrdersFileID = &official.ID
		newFiles = append(newFiles, official)
		submitted = append(submitted, rt)
		if err := writeWorkspace(ws, fmt.Sprintf("game.x%d", rt.Race.Number()), data); err != nil {
			return nil, err
		}
	}

	if _, err := s.engine.Run(ctx, ModeGenerate, ws); err != nil {
		return nil, err
	}

	host, year, err := s.collectHost(ws, prev)
	if err != nil {
		return nil, err
	}
	races, err := s.repo.ListRaces(ctx, game.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list races: %w", err)
	}
	out, err := s.collectTurn(ctx, ws, host, year, races)
	if err != nil {
		return nil, err
	}
	newFiles = append(newFiles, out.files()...)

	s.scheduleNext(game)

	var turn *models.Turn
	err = s.repo.Transaction(ctx, func(tx repository.Repository) error {
		if err := createFiles(ctx, tx, newFiles); err != nil {
			return err
		}
		for _, rt := range submitted {
			if err := tx.SaveRaceTurn(ctx, rt); err != nil {
				return err
			}
		}
		if err := tx.SaveGame(ctx, game); err != nil {
			return err
		}
		turn, err = s.persistTurn(ctx, tx, game, out, races)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit turn: %w", err)
	}

	log.Info("✅ turn generated",
		zap.Int("year", turn.Year),
		zap.Int("orders", len(submitted)),
		zap.Int("scores", len(out.scores)))
	return turn, nil
}

// turnOutput is everything a finished engine run adds to the game, with the
// file rows stored but not yet saved.
type turnOutput struct {
	year   int
	host   *models.StarsFile
	states map[int]*models.StarsFile
	scores []ResolvedScore
}

func (o *turnOutput) files() []*models.StarsFile {
	out := []*models.StarsFile{o.host}
	for _, f := range o.states {
		out = append(out, f)
	}
	return out
}

// collectHost reads the single host file and derives the new turn's year,
// which must move past prev.
func (s *TurnService) collectHost(ws string, prev *models.Turn) (*CollectedFile, int, error) {
	host, err := s.collector.CollectOne(ws, HostPattern, starsfile.KindHost)
	if err != nil {
		return nil, 0, err
	}
	year := models.BaseYear + int(host.File.Header().Turn)
	if prev != nil && year <= prev.Year {
		return nil, 0, &EngineOutputError{
			Reason: fmt.Sprintf("host file is for year %d, current turn is already %d", year, prev.Year),
		}
	}
	return host, year, nil
}

// collectTurn gathers the per-player state files, reconciles their scores
// and stores every output blob.
func (s *TurnService) collectTurn(ctx context.Context, ws string, host *CollectedFile, year int, races []models.Race) (*turnOutput, error) {
	known := make(map[int]bool, len(races))
	var players []int
	for _, r := range races {
		if r.PlayerNumber != nil {
			known[*r.PlayerNumber] = true
			players = append(players, *r.PlayerNumber)
		}
	}

	states, err := s.collector.Collect(ws, StatePattern, starsfile.KindState, AnyCount)
	if err != nil {
		return nil, err
	}
	byPlayer := make(map[int]CollectedFile, len(states))
	decoded := make([]*starsfile.File, 0, len(states))
	for _, st := range states {
		player := int(st.File.Header().Player)
		if !known[player] {
			return nil, &EngineOutputError{Reason: fmt.Sprintf("%s belongs to player %d, who has no race", st.Name, player)}
		}
		if other, dup := byPlayer[player]; dup {
			return nil, &EngineOutputError{Reason: fmt.Sprintf("%s and %s both belong to player %d", other.Name, st.Name, player)}
		}
		byPlayer[player] = st
		decoded = append(decoded, st.File)
	}

	scores, _ := s.scores.Reconcile(decoded, players)

	out := &turnOutput{year: year, states: make(map[int]*models.StarsFile, len(byPlayer)), scores: scores}
	if out.host, err = s.files.Store(ctx, host.Data, models.FileTypeHost, nil); err != nil {
		return nil, err
	}
	for player, st := range byPlayer {
		f, err := s.files.Store(ctx, st.Data, models.FileTypeState, nil)
		if err != nil {
			return nil, err
		}
		out.states[player] = f
	}
	return out, nil
}

func (s *TurnService) persistTurn(ctx context.Context, tx repository.Repository, game *models.Game, out *turnOutput, races []models.Race) (*models.Turn, error) {
	raceIDs := make(map[int]uint, len(races))
	for _, r := range races {
		if r.PlayerNumber != nil {
			raceIDs[*r.PlayerNumber] = r.ID
		}
	}

	turn := &models.Turn{GameID: game.ID, Year: out.year, HostFileID: out.host.ID}
	if err := tx.CreateTurn(ctx, turn); err != nil {
		return nil, fmt.Errorf("failed to create turn: %w", err)
	}

	for player, f := range out.states {
		rt := models.RaceTurn{RaceID: raceIDs[player], TurnID: turn.ID, StateFileID: f.ID}
		if err := tx.CreateRaceTurn(ctx, &rt); err != nil {
			return nil, fmt.Errorf("failed to create race turn for player %d: %w", player, err)
		}
		turn.RaceTurns = append(turn.RaceTurns, rt)
	}

	scores := make([]models.Score, 0, len(out.scores))
	for _, sc := range out.scores {
		scores = append(scores, models.Score{
			TurnID:  turn.ID,
			RaceID:  raceIDs[sc.Player],
			Section: sc.Section,
			Value:   sc.Value,
		})
	}
	if err := tx.CreateScores(ctx, scores); err != nil {
		return nil, fmt.Errorf("failed to create scores: %w", err)
	}
	turn.Scores = scores
	return turn, nil
}

func createFiles(ctx context.Context, tx repository.Repository, files []*models.StarsFile) error {
	for _, f := range files {
		if err := tx.CreateStarsFile(ctx, f); err != nil {
			return fmt.Errorf("failed to save stars file %s: %w", f.ID, err)
		}
	}
	return nil
}

func (s *TurnService) scheduleNext(game *models.Game) {
	if game.TurnInterval <= 0 {
		game.NextGenerationAt = nil
		return
	}
	next := s.now().Add(time.Duration(game.TurnInterval) * time.Minute)
	game.NextGenerationAt = &next
}
