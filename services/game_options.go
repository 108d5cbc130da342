package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"stars-host/models"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/encoding/charmap"
)

// MaxPlayers is the most player slots the engine accepts.
const MaxPlayers = 16

// ConfigFileName is the config file the engine is activated with.
const ConfigFileName = "game.def"

type bound struct {
	field    string
	value    *int
	min, max int
}

// ValidateOptions checks option values against the ranges the engine accepts.
func ValidateOptions(o *models.GameOptions) error {
	fixed := []struct {
		field    string
		value    int
		min, max int
	}{
		{"universe_size", o.UniverseSize, models.UniverseTiny, models.UniverseHuge},
		{"universe_density", o.UniverseDensity, models.DensitySparse, models.DensityPacked},
		{"starting_distance", o.StartingDistance, models.DistanceClose, models.DistanceDistant},
		{"num_criteria", o.NumCriteria, 0, 7},
		{"min_turns_to_win", o.MinTurnsToWin, 30, 500},
	}
	for _, f := range fixed {
		if f.value < f.min || f.value > f.max {
			return configErrorf(f.field, "%d is outside %d..%d", f.value, f.min, f.max)
		}
	}

	optional := []bound{
		{"percent_planets", o.PercentPlanets, 20, 100},
		{"tech_level", o.TechLevel, 8, 26},
		{"tech_fields", o.TechFields, 2, 6},
		{"score", o.Score, 1000, 20000},
		{"exceeds_nearest_score", o.ExceedsNearestScore, 20, 300},
		{"production", o.Production, 10, 500},
		{"capital_ships", o.CapitalShips, 10, 300},
		{"highest_score_after_years", o.HighestScoreAfterYears, 30, 900},
	}
	for _, b := range optional {
		if b.value != nil && (*b.value < b.min || *b.value > b.max) {
			return configErrorf(b.field, "%d is outside %d..%d", *b.value, b.min, b.max)
		}
	}
	if o.TechLevel != nil && o.TechFields == nil {
		return configErrorf("tech_fields", "required when tech_level is set")
	}

	_, err := ParseAIPlayers(o.AIPlayers)
	return err
}

// AIPlayer is one computer player slot: race code and skill level.
type AIPlayer struct {
	Race  int
	Skill int
}

// ParseAIPlayers reads a comma separated list of race,skill pairs.
func ParseAIPlayers(s string) ([]AIPlayer, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts)%2 != 0 {
		return nil, configErrorf("ai_players", "%q does not hold race,skill pairs", s)
	}

	players := make([]AIPlayer, 0, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		race, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || race < 0 || race >= len(models.AIRaces) {
			return nil, configErrorf("ai_players", "bad race code %q", parts[i])
		}
		skill, err := strconv.Atoi(strings.TrimSpace(parts[i+1]))
		if err != nil || skill < 0 || skill >= len(models.AISkillLevels) {
			return nil, configErrorf("ai_players", "bad skill level %q", parts[i+1])
		}
		players = append(players, AIPlayer{Race: race, Skill: skill})
	}
	return players, nil
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func victory(v *int) string {
	if v == nil {
		return "0"
	}
	return fmt.Sprintf("1 %d", *v)
}

// RenderConfig produces the engine's universe definition for game. prefix is
// the workspace directory as the engine sees it, separator included. Only
// races holding a player number are listed. The output depends on nothing
// but its arguments.
func RenderConfig(game *models.Game, races []models.Race, prefix string) (string, error) {
	o := &game.Options
	if strings.TrimSpace(game.Name) == "" {
		return "", configErrorf("name", "game has no name")
	}
	// one line of the config file
	if strings.ContainsFunc(game.Name, unicode.IsControl) {
		return "", configErrorf("name", "game name %q contains control characters", game.Name)
	}
	if err := ValidateOptions(o); err != nil {
		return "", err
	}
	ais, _ := ParseAIPlayers(o.AIPlayers)

	numbered := make([]models.Race, 0, len(races))
	for _, r := range races {
		if r.PlayerNumber != nil {
			numbered = append(numbered, r)
		}
	}
	sort.Slice(numbered, func(i, j int) bool {
		return *numbered[i].PlayerNumber < *numbered[j].PlayerNumber
	})

	players := make([]string, 0, len(numbered)+len(ais))
	for _, r := range numbered {
		players = append(players, fmt.Sprintf("%srace.r%d", prefix, r.Number()))
	}
	for _, ai := range ais {
		players = append(players, fmt.Sprintf("# %d %d", ai.Race, ai.Skill))
	}
	if len(players) > MaxPlayers {
		players = players[:MaxPlayers]
	}
	if len(players) == 0 {
		return "", configErrorf("players", "no numbered races and no computer players")
	}

	tech := "0"
	if o.TechLevel != nil {
		tech = fmt.Sprintf("1 %d %d", *o.TechLevel, *o.TechFields)
	}

	var b strings.Builder
	fmt.Fprintln(&b, game.Name)
	fmt.Fprintf(&b, "%d %d %d\n", o.UniverseSize, o.UniverseDensity, o.StartingDistance)
	// random events are written as "no random events"
	fmt.Fprintf(&b, "%d %d %d %d %d %d %d\n",
		flag(o.MaximumMinerals), flag(o.SlowTech), flag(o.AcceleratedBBS), flag(!o.RandomEvents),
		flag(o.ComputerAlliances), flag(o.PublicScores), flag(o.GalaxyClumping))
	fmt.Fprintln(&b, len(players))
	for _, p := range players {
		fmt.Fprintln(&b, p)
	}
	fmt.Fprintln(&b, victory(o.PercentPlanets))
	fmt.Fprintln(&b, tech)
	fmt.Fprintln(&b, victory(o.Score))
	fmt.Fprintln(&b, victory(o.ExceedsNearestScore))
	fmt.Fprintln(&b, victory(o.Production))
	fmt.Fprintln(&b, victory(o.CapitalShips))
	fmt.Fprintln(&b, victory(o.HighestScoreAfterYears))
	fmt.Fprintf(&b, "%d %d\n", o.NumCriteria, o.MinTurnsToWin)
	fmt.Fprintf(&b, "%s%s.xy\n", prefix, game.MapSlug())
	return b.String(), nil
}

// EncodeConfig converts rendered text to the engine's Windows-1252 code page,
// transliterating characters the code page cannot hold.
func EncodeConfig(text string) []byte {
	enc := charmap.Windows1252
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if c, ok := enc.EncodeRune(r); ok {
			out = append(out, c)
			continue
		}
		for _, t := range unidecode.Unidecode(string(r)) {
			if c, ok := enc.EncodeRune(t); ok {
				out = append(out, c)
			} else {
				out = append(out, '?')
			}
		}
	}
	return out
}

// WriteConfig writes the encoded config into the workspace.
func WriteConfig(workspace, text string) error {
	path := filepath.Join(workspace, ConfigFileName)
	if err := os.WriteFile(path, EncodeConfig(text), 0o644); err != nil {
		return &WorkspaceError{Path: path, Err: err}
	}
	return nil
}
