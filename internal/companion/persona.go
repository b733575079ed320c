package companion

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Pool names. Most intents own a pool of the same name; fatigue and
// sleep-hours fan out to the sleep pools.
const (
	PoolGreeting        = "greeting"
	PoolStress          = "stress"
	PoolFatigue         = "fatigue"
	PoolSleepQuestion   = "sleep_question"
	PoolSleepOptimal    = "sleep_optimal"
	PoolSleepCautionary = "sleep_cautionary"
	PoolSleepConcerned  = "sleep_concerned"
	PoolExercise        = "exercise"
	PoolGuidance        = "guidance"
	PoolReportIssue     = "report_issue"
	PoolMissionStatus   = "mission_status"
	PoolGratitude       = "gratitude"
	PoolFarewell        = "farewell"
	PoolFallback        = "fallback"
	// PoolHome is optional; personas without it answer from PoolFallback.
	PoolHome            = "home"
)

// RequiredPools lists the pools every persona must define.
var RequiredPools = []string{
	PoolGreeting, PoolStress, PoolFatigue,
	PoolSleepQuestion, PoolSleepOptimal, PoolSleepCautionary, PoolSleepConcerned,
	PoolExercise, PoolGuidance, PoolReportIssue, PoolMissionStatus,
	PoolGratitude, PoolFarewell, PoolFallback,
}

var (
	ErrPersonaInvalid = errors.New("invalid persona")
	ErrUnknownPersona = errors.New("unknown persona")
)

// Pool is a named set of candidate replies for one intent.
type Pool struct {
	Category string
	Entries  []string
}

// VoiceSettings tunes speech synthesis for a persona.
type VoiceSettings struct {
	Hint   string  `yaml:"hint" json:"hint,omitempty"`
	Rate   float64 `yaml:"rate" json:"rate"`
	Pitch  float64 `yaml:"pitch" json:"pitch"`
	Volume float64 `yaml:"volume" json:"volume"`
}

// SleepPolicy holds the sleep-hour bands. Hours >= High is optimal,
// Mid <= hours < High is cautionary, below Mid is concerning.
type SleepPolicy struct {
	High        int           `yaml:"high"`
	Mid         int           `yaml:"mid"`
	CheckWindow time.Duration `yaml:"check_window"`
}

// Band returns the pool for a reported number of hours.
func (p SleepPolicy) Band(hours int) string {
	switch {
	case hours >= p.High:
		return PoolSleepOptimal
	case hours >= p.Mid:
		return PoolSleepCautionary
	default:
		return PoolSleepConcerned
	}
}

// Window returns the sleep-check freshness window, defaulting to 24h.
func (p SleepPolicy) Window() time.Duration {
	if p.CheckWindow <= 0 {
		return 24 * time.Hour
	}
	return p.CheckWindow
}

// Persona is the data-driven identity of the companion: who it is, how it
// addresses the astronaut, what it says and how it sounds.
type Persona struct {
	ID           string              `yaml:"id"`
	Extends      string              `yaml:"extends,omitempty"`
	Name         string              `yaml:"name"`
	Address      string              `yaml:"address"`
	Tagline      string              `yaml:"tagline"`
	Image        string              `yaml:"image,omitempty"`
	Opening      string              `yaml:"opening"`
	ErrorReply   string              `yaml:"error_reply"`
	QuickActions []string            `yaml:"quick_actions"`
	Voice        VoiceSettings       `yaml:"voice"`
	Sleep        SleepPolicy         `yaml:"sleep"`
	Pools        map[string][]string `yaml:"pools"`
}

// Pool returns the named pool.
func (p *Persona) Pool(name string) (Pool, bool) {
	entries, ok := p.Pools[name]
	if !ok || len(entries) == 0 {
		return Pool{}, false
	}
	return Pool{Category: name, Entries: entries}, true
}

// Vars returns the persona-level placeholder values.
func (p *Persona) Vars() map[string]string {
	return map[string]string{
		"name":    p.Name,
		"address": p.Address,
	}
}

// OpeningText renders the opening message.
func (p *Persona) OpeningText() (string, error) {
	return Render(p.Opening, p.Vars())
}

// ErrorText renders the generic reply used when a turn fails.
func (p *Persona) ErrorText() string {
	text, err := Render(p.ErrorReply, p.Vars())
	if err != nil || text == "" {
		return "Sorry, I lost my train of thought. Could you say that again?"
	}
	return text
}

// Validate checks that the persona is complete and self-consistent.
func (p *Persona) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrPersonaInvalid)
	}
	missing := lo.Filter(RequiredPools, func(name string, _ int) bool {
		return len(lo.Compact(p.Pools[name])) == 0
	})
	if len(missing) > 0 {
		return fmt.Errorf("%w %q: empty or missing pools %v", ErrPersonaInvalid, p.Name, missing)
	}
	for name, entries := range p.Pools {
		if lo.Contains(entries, "") {
			return fmt.Errorf("%w %q: pool %s has a blank entry", ErrPersonaInvalid, p.Name, name)
		}
	}
	if p.Sleep.Mid < 0 || p.Sleep.High <= p.Sleep.Mid {
		return fmt.Errorf("%w %q: sleep thresholds need 0 <= mid < high, got mid=%d high=%d",
			ErrPersonaInvalid, p.Name, p.Sleep.Mid, p.Sleep.High)
	}
	if _, err := p.OpeningText(); err != nil {
		return fmt.Errorf("%w %q: opening: %w", ErrPersonaInvalid, p.Name, err)
	}
	if _, err := Render(p.ErrorReply, p.Vars()); err != nil {
		return fmt.Errorf("%w %q: error reply: %w", ErrPersonaInvalid, p.Name, err)
	}
	return nil
}

// Clone returns a deep copy so callers can override fields safely.
func (p *Persona) Clone() *Persona {
	c := *p
	c.QuickActions = append([]string(nil), p.QuickActions...)
	c.Pools = make(map[string][]string, len(p.Pools))
	for k, v := range p.Pools {
		c.Pools[k] = append([]string(nil), v...)
	}
	return &c
}

// LoadPersona reads a persona from a YAML file. When the file sets
// "extends", unspecified fields and pools are inherited from that built-in.
func LoadPersona(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona: %w", err)
	}
	return ParsePersona(data)
}

// ParsePersona decodes and validates a YAML persona document.
func ParsePersona(data []byte) (*Persona, error) {
	var raw Persona
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse persona: %w", err)
	}

	p := &raw
	if raw.Extends != "" {
		base, err := BuiltinPersona(raw.Extends)
		if err != nil {
			return nil, err
		}
		p = merge(base, &raw)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func merge(base, over *Persona) *Persona {
	out := base.Clone()
	out.Extends = over.Extends
	if over.ID != "" {
		out.ID = over.ID
	}
	if over.Name != "" {
		out.Name = over.Name
	}
	if over.Address != "" {
		out.Address = over.Address
	}
	if over.Tagline != "" {
		out.Tagline = over.Tagline
	}
	if over.Image != "" {
		out.Image = over.Image
	}
	if over.Opening != "" {
		out.Opening = over.Opening
	}
	if over.ErrorReply != "" {
		out.ErrorReply = over.ErrorReply
	}
	if len(over.QuickActions) > 0 {
		out.QuickActions = append([]string(nil), over.QuickActions...)
	}
	if over.Voice != (VoiceSettings{}) {
		out.Voice = over.Voice
	}
	if over.Sleep.High != 0 || over.Sleep.Mid != 0 {
		out.Sleep.High = over.Sleep.High
		out.Sleep.Mid = over.Sleep.Mid
	}
	if over.Sleep.CheckWindow != 0 {
		out.Sleep.CheckWindow = over.Sleep.CheckWindow
	}
	for name, entries := range over.Pools {
		out.Pools[name] = append([]string(nil), entries...)
	}
	return out
}
