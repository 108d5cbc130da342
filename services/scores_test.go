package services

import (
	"testing"

	"stars-host/models"
	"stars-host/starsfile"
	"stars-host/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateFile(owner uint8, scores ...*starsfile.PlayerScores) *starsfile.File {
	recs := []starsfile.Record{&starsfile.FileHeader{Player: owner, Kind: starsfile.KindState}}
	for _, s := range scores {
		recs = append(recs, s)
	}
	return &starsfile.File{Records: recs}
}

func valueOf(t *testing.T, scores []ResolvedScore, player int, section models.ScoreSection) int {
	t.Helper()
	for _, s := range scores {
		if s.Player == player && s.Section == section {
			return s.Value
		}
	}
	t.Fatalf("no score for player %d section %s", player, section)
	return 0
}

func TestScoreReconciler_CanonicalFirst(t *testing.T) {
	log, logs := testutil.ObservedLogger()
	r := NewScoreReconciler(log)

	files := []*starsfile.File{
		stateFile(0, &starsfile.PlayerScores{Player: 0, Score: 100}),
		stateFile(1,
			&starsfile.PlayerScores{Player: 1, Score: 95},
			&starsfile.PlayerScores{Player: 0, Score: 100}),
	}
	scores, ambiguous := r.Reconcile(files, []int{0, 1})

	assert.Equal(t, 100, valueOf(t, scores, 0, models.SectionScore))
	assert.Equal(t, 95, valueOf(t, scores, 1, models.SectionScore))
	assert.Len(t, scores, 2*len(models.ScoreSections))
	assert.Empty(t, ambiguous)
	assert.Zero(t, logs.FilterMessage("ambiguous score reconciliation").Len())
}

func TestScoreReconciler_CanonicalBeatsHigherFallback(t *testing.T) {
	log, _ := testutil.ObservedLogger()
	files := []*starsfile.File{
		stateFile(0, &starsfile.PlayerScores{Player: 0, Score: 10}),
		stateFile(1, &starsfile.PlayerScores{Player: 0, Score: 500}),
	}
	scores, ambiguous := NewScoreReconciler(log).Reconcile(files, []int{0})

	assert.Equal(t, 10, valueOf(t, scores, 0, models.SectionScore))
	assert.Empty(t, ambiguous)
}

func TestScoreReconciler_FallbackWithAmbiguity(t *testing.T) {
	log, logs := testutil.ObservedLogger()
	r := NewScoreReconciler(log)

	files := []*starsfile.File{
		stateFile(0,
			&starsfile.PlayerScores{Player: 0, Score: 100},
			&starsfile.PlayerScores{Player: 2, Score: 40}),
		stateFile(1,
			&starsfile.PlayerScores{Player: 1, Score: 95},
			&starsfile.PlayerScores{Player: 2, Score: 42}),
	}
	scores, ambiguous := r.Reconcile(files, []int{0, 1, 2})

	assert.Equal(t, 42, valueOf(t, scores, 2, models.SectionScore))
	require.Len(t, ambiguous, 1)
	assert.Equal(t, ReconciliationAmbiguity{
		Player:  2,
		Section: models.SectionScore,
		Values:  []int{40, 42},
		Chosen:  42,
	}, ambiguous[0])

	entries := logs.FilterMessage("ambiguous score reconciliation").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 2, entries[0].ContextMap()["player"])
	assert.EqualValues(t, 42, entries[0].ContextMap()["chosen"])
}

func TestScoreReconciler_SkipsUnreportedPlayers(t *testing.T) {
	log, logs := testutil.ObservedLogger()
	files := []*starsfile.File{stateFile(0, &starsfile.PlayerScores{Player: 0, Score: 1})}

	scores, _ := NewScoreReconciler(log).Reconcile(files, []int{0, 5})

	assert.Len(t, scores, len(models.ScoreSections))
	for _, s := range scores {
		assert.Equal(t, 0, s.Player)
	}
	assert.Equal(t, len(models.ScoreSections), logs.FilterMessage("no score reported").Len())
}

func TestScoreReconciler_AllSections(t *testing.T) {
	log, _ := testutil.ObservedLogger()
	files := []*starsfile.File{stateFile(3, &starsfile.PlayerScores{
		Player: 3, Rank: 1, Score: 2, Resources: 3, TechLevels: 4, CapitalShips: 5,
		EscortShips: 6, UnarmedShips: 7, Starbases: 8, Planets: 9,
	})}
	scores, _ := NewScoreReconciler(log).Reconcile(files, []int{3})

	require.Len(t, scores, 9)
	for i, s := range scores {
		assert.Equal(t, models.ScoreSections[i], s.Section)
		assert.Equal(t, i+1, s.Value)
	}
}

func TestScoreReconciler_NoFiles(t *testing.T) {
	log, _ := testutil.ObservedLogger()
	scores, ambiguous := NewScoreReconciler(log).Reconcile(nil, []int{0, 1})
	assert.Empty(t, scores)
	assert.Empty(t, ambiguous)
}
