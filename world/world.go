// world/world.go
package world

import "strings"

// Stat names the enumerated character attributes shared by the party.
type Stat string

const (
	STR Stat = "STR"
	DEF Stat = "DEF"
	HP  Stat = "HP"
)

// ParseStat maps a key from the narrative service onto a known stat.
func ParseStat(key string) (Stat, bool) {
	switch Stat(strings.ToUpper(strings.TrimSpace(key))) {
	case STR:
		return STR, true
	case DEF:
		return DEF, true
	case HP:
		return HP, true
	}
	return "", false
}

type Stats struct {
	STR float64 `json:"STR"`
	DEF float64 `json:"DEF"`
	HP  float64 `json:"HP"`
}

// Add returns s with every field of d summed in. No clamping is applied.
func (s Stats) Add(d Stats) Stats {
	return Stats{
		STR: s.STR + d.STR,
		DEF: s.DEF + d.DEF,
		HP:  s.HP + d.HP,
	}
}

// AddStat adds v onto the named stat of s.
func (s *Stats) AddStat(stat Stat, v float64) {
	switch stat {
	case STR:
		s.STR += v
	case DEF:
		s.DEF += v
	case HP:
		s.HP += v
	}
}

func DefaultStats() Stats {
	return Stats{STR: 10, DEF: 10, HP: 100}
}

// Delta is the change an action result makes to the world. Stats and money
// are summed, inventory labels are appended.
type Delta struct {
	Stats     Stats
	Inventory []string
	Money     float64
}

// Result is a successful narrative outcome.
type Result struct {
	Story string
	Delta Delta
}

// Snapshot is the wire form of the world, broadcast to every participant.
type Snapshot struct {
	Story     string   `json:"story"`
	Stats     Stats    `json:"stats"`
	Inventory []string `json:"inventory"`
	Money     float64  `json:"money"`
}

// State is the single shared world. It is not safe for concurrent use; the
// room loop owns it.
type State struct {
	story     strings.Builder
	stats     Stats
	inventory []string
	money     float64
}

func New(openingStory string) *State {
	s := &State{
		stats:     DefaultStats(),
		inventory: []string{},
	}
	s.story.WriteString(openingStory)
	return s
}

// Story returns the full log, used as context for the next narrative call.
func (s *State) Story() string {
	return s.story.String()
}

// ApplyActionResult records the outcome of an action. On success the speaker
// line and the narrative line are appended to the story and the delta is
// applied. When err is non-nil the world is left untouched. It reports whether
// anything was applied.
func (s *State) ApplyActionResult(speaker, action string, res Result, err error) bool {
	if err != nil {
		return false
	}

	s.story.WriteString("\n> " + speaker + ": " + action)
	s.story.WriteString("\n" + res.Story)

	s.stats = s.stats.Add(res.Delta.Stats)
	s.money += res.Delta.Money
	for _, item := range res.Delta.Inventory {
		if item = strings.TrimSpace(item); item != "" {
			s.inventory = append(s.inventory, item)
		}
	}
	return true
}

func (s *State) Snapshot() Snapshot {
	inv := make([]string, len(s.inventory))
	copy(inv, s.inventory)
	return Snapshot{
		Story:     s.story.String(),
		Stats:     s.stats,
		Inventory: inv,
		Money:     s.money,
	}
}
