package services

import (
	"sort"

	"stars-host/models"
	"stars-host/starsfile"

	"go.uber.org/zap"
)

// ResolvedScore is one reconciled score sheet cell.
type ResolvedScore struct {
	Player  int
	Section models.ScoreSection
	Value   int
}

type scoreCell struct {
	player  int
	section models.ScoreSection
}

// ScoreReconciler merges the score sheets found in every player's state
// file. A player's own file decides their scores; other files only fill gaps.
type ScoreReconciler struct {
	log *zap.Logger
}

func NewScoreReconciler(log *zap.Logger) *ScoreReconciler {
	return &ScoreReconciler{log: log}
}

func sectionValues(s *starsfile.PlayerScores) map[models.ScoreSection]int {
	return map[models.ScoreSection]int{
		models.SectionRank:         int(s.Rank),
		models.SectionScore:        int(s.Score),
		models.SectionResources:    int(s.Resources),
		models.SectionTechLevels:   int(s.TechLevels),
		models.SectionCapitalShips: int(s.CapitalShips),
		models.SectionEscortShips:  int(s.EscortShips),
		models.SectionUnarmedShips: int(s.UnarmedShips),
		models.SectionStarbases:    int(s.Starbases),
		models.SectionPlanets:      int(s.Planets),
	}
}

// Reconcile resolves a value for every player in players and every section.
// Cells nobody reported are left out. Ambiguous cells are logged and also
// returned.
func (r *ScoreReconciler) Reconcile(files []*starsfile.File, players []int) ([]ResolvedScore, []ReconciliationAmbiguity) {
	canonical := make(map[scoreCell][]int)
	pool := make(map[scoreCell][]int)

	for _, f := range files {
		h := f.Header()
		if h == nil {
			continue
		}
		owner := int(h.Player)
		for _, s := range f.Scores() {
			subject := int(s.Player)
			for section, v := range sectionValues(s) {
				cell := scoreCell{player: subject, section: section}
				pool[cell] = append(pool[cell], v)
				if subject == owner {
					canonical[cell] = append(canonical[cell], v)
				}
			}
		}
	}

	sorted := append([]int(nil), players...)
	sort.Ints(sorted)

	var (
		resolved  []ResolvedScore
		ambiguous []ReconciliationAmbiguity
	)
	for _, player := range sorted {
		for _, section := range models.ScoreSections {
			cell := scoreCell{player: player, section: section}
			values, ok := canonical[cell]
			if !ok {
				values, ok = pool[cell]
			}
			if !ok {
				r.log.Debug("no score reported", zap.Int("player", player), zap.Stringer("section", section))
				continue
			}

			chosen, distinct := maxDistinct(values)
			resolved = append(resolved, ResolvedScore{Player: player, Section: section, Value: chosen})
			if len(distinct) > 1 {
				a := ReconciliationAmbiguity{Player: player, Section: section, Values: distinct, Chosen: chosen}
				ambiguous = append(ambiguous, a)
				r.log.Warn("ambiguous score reconciliation",
					zap.Int("player", player),
					zap.Stringer("section", section),
					zap.Ints("values", distinct),
					zap.Int("chosen", chosen),
					zap.Bool("canonical", len(canonical[cell]) > 0))
			}
		}
	}
	return resolved, ambiguous
}

// maxDistinct returns the largest value and the sorted distinct values.
func maxDistinct(values []int) (int, []int) {
	seen := make(map[int]bool, len(values))
	var distinct []int
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			distinct = append(distinct, v)
		}
	}
	sort.Ints(distinct)
	return distinct[len(distinct)-1], distinct
}
