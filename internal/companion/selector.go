package companion

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/ashureev/astrocare/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// ErrPoolMissing is returned when a persona has no pool for a routed intent.
var ErrPoolMissing = errors.New("template pool missing")

// PlaceholderError reports a template that needs a value the session lacks.
// It is a configuration defect and must never be rendered as blank text.
type PlaceholderError struct {
	Pool        string
	TemplateID  string
	Placeholder string
}

func (e *PlaceholderError) Error() string {
	if e.TemplateID == "" {
		return fmt.Sprintf("placeholder {%s} has no value", e.Placeholder)
	}
	return fmt.Sprintf("template %s needs {%s} but no value is set", e.TemplateID, e.Placeholder)
}

// Render substitutes {placeholders} from vars. The first placeholder without
// a value fails the whole render.
func Render(template string, vars map[string]string) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(tok string) string {
		key := tok[1 : len(tok)-1]
		v, ok := vars[key]
		if !ok {
			if missing == "" {
				missing = key
			}
			return tok
		}
		return v
	})
	if missing != "" {
		return "", &PlaceholderError{Placeholder: missing}
	}
	return out, nil
}

// Source is the random source used to pick among candidates.
type Source interface {
	IntN(n int) int
}

// NewSeededSource returns a deterministic source for tests and replays.
func NewSeededSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Reply is the selector's output for one turn.
type Reply struct {
	Text       string
	Intent     Intent
	Pool       string
	TemplateID string
}

// Selector picks and renders a reply for a classified utterance.
type Selector struct {
	persona *Persona
	rng     Source
	now     func() time.Time
}

// NewSelector creates a selector for persona. A nil rng uses a randomly
// seeded source; a nil clock uses time.Now.
func NewSelector(persona *Persona, rng Source, now func() time.Time) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if now == nil {
		now = time.Now
	}
	return &Selector{persona: persona, rng: rng, now: now}
}

// Persona returns the persona the selector speaks for.
func (s *Selector) Persona() *Persona {
	return s.persona
}

// pending holds session mutations applied only after a template resolved.
type pending func(*domain.SessionState)

// SelectReply chooses a reply for m and updates session bookkeeping.
// The turn counter is incremented on every call; everything else is
// committed only once the template rendered successfully.
func (s *Selector) SelectReply(m Match, sess *domain.SessionState) (Reply, error) {
	sess.RecordUserTurn()
	now := s.now()

	poolName, commit := s.route(m, sess, now)
	pool, ok := s.persona.Pool(poolName)
	if !ok {
		return Reply{Intent: m.Intent}, fmt.Errorf("%w: %s", ErrPoolMissing, poolName)
	}

	idx, reset := pick(pool, sess, s.rng)
	id := templateID(pool.Category, idx)

	// Persona identity wins over a fact of the same name.
	vars := lo.Assign(sess.Facts, s.persona.Vars())
	if m.Intent == IntentSleepHours {
		vars["hours"] = strconv.Itoa(m.Hours)
	}

	text, err := Render(pool.Entries[idx], vars)
	if err != nil {
		var pe *PlaceholderError
		if errors.As(err, &pe) {
			pe.Pool = pool.Category
			pe.TemplateID = id
		}
		return Reply{Intent: m.Intent, Pool: pool.Category, TemplateID: id}, fmt.Errorf("select reply for %s: %w", m.Intent, err)
	}

	if reset {
		for i := range pool.Entries {
			sess.ForgetUsed(templateID(pool.Category, i))
		}
		if len(pool.Entries) > 1 {
			if last, ok := sess.LastTemplates[pool.Category]; ok {
				sess.MarkUsed(last)
			}
		}
	}
	sess.MarkUsed(id)
	sess.SetLastTemplate(pool.Category, id)
	if commit != nil {
		commit(sess)
	}

	return Reply{
		Text:       text,
		Intent:     m.Intent,
		Pool:       pool.Category,
		TemplateID: id,
	}, nil
}

func (s *Selector) route(m Match, sess *domain.SessionState, now time.Time) (string, pending) {
	switch m.Intent {
	case IntentSleepHours:
		hours := m.Hours
		return s.persona.Sleep.Band(hours), func(st *domain.SessionState) {
			st.RecordSleepHours(hours)
		}
	case IntentFatigue:
		if sess.IsSleepCheckStale(now, s.persona.Sleep.Window()) {
			return PoolSleepQuestion, func(st *domain.SessionState) {
				st.MarkSleepCheckAsked(now)
			}
		}
		return PoolFatigue, nil
	case IntentFallback, "":
		return PoolFallback, nil
	case IntentHome:
		if _, ok := s.persona.Pool(PoolHome); !ok {
			return PoolFallback, nil
		}
		return PoolHome, nil
	default:
		return string(m.Intent), nil
	}
}

// pick chooses an entry not yet used in this pool. When every entry has been
// used the pool starts over, excluding the entry produced last so a reset
// never repeats it immediately. It does not mutate the session.
func pick(pool Pool, sess *domain.SessionState, rng Source) (idx int, reset bool) {
	all := lo.Range(len(pool.Entries))
	candidates := lo.Filter(all, func(i int, _ int) bool {
		return !sess.WasUsed(templateID(pool.Category, i))
	})
	if len(candidates) == 0 {
		reset = true
		last := sess.LastTemplates[pool.Category]
		candidates = lo.Filter(all, func(i int, _ int) bool {
			return len(all) == 1 || templateID(pool.Category, i) != last
		})
	}
	return candidates[rng.IntN(len(candidates))], reset
}

func templateID(pool string, idx int) string {
	return pool + "#" + strconv.Itoa(idx)
}
