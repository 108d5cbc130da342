package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"stars-host/models"
	"stars-host/repository"
	"stars-host/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormRepository_GameAndRaces(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGormRepository(testutil.SetupTestDB(t))

	game := testutil.NewGame("Ulf War Revisited")
	require.NoError(t, repo.CreateGame(ctx, game))
	assert.Equal(t, "ulf-war-revisited", game.Slug)
	assert.Equal(t, "ulf-war-", game.MapSlug())

	got, err := repo.GetGame(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GameStateSetup, got.State)
	assert.True(t, got.Options.RandomEvents)
	assert.Equal(t, 50, got.Options.MinTurnsToWin)

	_, err = repo.GetGame(ctx, game.ID+100)
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	for _, name := range []string{"Gestalti", "SSG", "Halflings"} {
		require.NoError(t, repo.CreateRace(ctx, &models.Race{GameID: game.ID, Name: name, PluralName: name}))
	}
	races, err := repo.ListRaces(ctx, game.ID)
	require.NoError(t, err)
	require.Len(t, races, 3)
	assert.Equal(t, "Gestalti", races[0].Name)
	assert.Equal(t, "gestalti", races[0].Slug)
	assert.Nil(t, races[0].PlayerNumber)
}

func TestGormRepository_PlayerNumbersUniquePerGame(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGormRepository(testutil.SetupTestDB(t))

	game := testutil.NewGame("Foobar")
	require.NoError(t, repo.CreateGame(ctx, game))

	require.NoError(t, repo.CreateRace(ctx, &models.Race{GameID: game.ID, Name: "A", PluralName: "As", PlayerNumber: testutil.IntPtr(0)}))
	err := repo.CreateRace(ctx, &models.Race{GameID: game.ID, Name: "B", PluralName: "Bs", PlayerNumber: testutil.IntPtr(0)})
	assert.Error(t, err)

	// any number of unnumbered races is fine
	require.NoError(t, repo.CreateRace(ctx, &models.Race{GameID: game.ID, Name: "C", PluralName: "Cs"}))
	require.NoError(t, repo.CreateRace(ctx, &models.Race{GameID: game.ID, Name: "D", PluralName: "Ds"}))

	require.NoError(t, repo.ClearPlayerNumbers(ctx, game.ID))
	races, err := repo.ListRaces(ctx, game.ID)
	require.NoError(t, err)
	for _, r := range races {
		assert.Nil(t, r.PlayerNumber)
	}
}

func TestGormRepository_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGormRepository(testutil.SetupTestDB(t))

	game := testutil.NewGame("Foobar")
	require.NoError(t, repo.CreateGame(ctx, game))

	boom := errors.New("boom")
	err := repo.Transaction(ctx, func(tx repository.Repository) error {
		if err := tx.CreateTurn(ctx, &models.Turn{GameID: game.ID, Year: 2400, HostFileID: "h"}); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	turn, err := repo.LatestTurn(ctx, game.ID)
	require.NoError(t, err)
	assert.Nil(t, turn)
}

func TestGormRepository_TurnsAndScores(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGormRepository(testutil.SetupTestDB(t))

	game := testutil.NewGame("Foobar")
	require.NoError(t, repo.CreateGame(ctx, game))
	race := &models.Race{GameID: game.ID, Name: "A", PluralName: "As", PlayerNumber: testutil.IntPtr(0)}
	require.NoError(t, repo.CreateRace(ctx, race))

	for _, year := range []int{2400, 2401, 2402} {
		require.NoError(t, repo.CreateTurn(ctx, &models.Turn{GameID: game.ID, Year: year, HostFileID: "h"}))
	}
	latest, err := repo.LatestTurn(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, 2402, latest.Year)

	require.NoError(t, repo.CreateScores(ctx, []models.Score{
		{TurnID: latest.ID, RaceID: race.ID, Section: models.SectionScore, Value: 10},
		{TurnID: latest.ID, RaceID: race.ID, Section: models.SectionRank, Value: 1},
	}))
	err = repo.CreateScores(ctx, []models.Score{{TurnID: latest.ID, RaceID: race.ID, Section: models.SectionScore, Value: 11}})
	assert.Error(t, err, "one score per turn, race and section")

	scores, err := repo.ListScores(ctx, latest.ID)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, models.SectionRank, scores[0].Section)

	byYear, err := repo.GetTurnByYear(ctx, game.ID, 2401)
	require.NoError(t, err)
	assert.Equal(t, 2401, byYear.Year)
}

func TestGormRepository_DueGames(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGormRepository(testutil.SetupTestDB(t))
	now := time.Now()
	past, future := now.Add(-time.Minute), now.Add(time.Hour)

	due := testutil.NewGame("Due")
	due.State, due.NextGenerationAt = models.GameStateActive, &past
	later := testutil.NewGame("Later")
	later.State, later.NextGenerationAt = models.GameStateActive, &future
	paused := testutil.NewGame("Paused")
	paused.State, paused.NextGenerationAt = models.GameStatePaused, &past
	manual := testutil.NewGame("Manual")
	manual.State = models.GameStateActive

	for _, g := range []*models.Game{due, later, paused, manual} {
		require.NoError(t, repo.CreateGame(ctx, g))
	}

	games, err := repo.DueGames(ctx, now)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, due.ID, games[0].ID)
}
