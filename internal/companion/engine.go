package companion

import (
	"time"

	"github.com/ashureev/astrocare/internal/domain"
)

// Options configures an Engine.
type Options struct {
	// Rand picks among reply candidates. Nil uses a random seed.
	Rand Source
	// Now is the clock. Nil uses time.Now.
	Now func() time.Time
	// Rules overrides the default rule order.
	Rules []Rule
}

// Engine couples a Matcher and a Selector for one persona.
type Engine struct {
	matcher  *Matcher
	selector *Selector
	persona  *Persona
}

// NewEngine validates persona and builds an engine for it.
func NewEngine(persona *Persona, opts Options) (*Engine, error) {
	if err := persona.Validate(); err != nil {
		return nil, err
	}
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules(persona.Sleep.Window())
	}
	return &Engine{
		matcher:  NewMatcher(rules, opts.Now),
		selector: NewSelector(persona, opts.Rand, opts.Now),
		persona:  persona,
	}, nil
}

// Persona returns the engine's persona.
func (e *Engine) Persona() *Persona {
	return e.persona
}

// Classify runs the matcher without touching the session.
func (e *Engine) Classify(text string, sess *domain.SessionState) Match {
	return e.matcher.Classify(text, sess)
}

// Respond classifies text and selects a reply, updating sess.
func (e *Engine) Respond(text string, sess *domain.SessionState) (Reply, error) {
	return e.selector.SelectReply(e.matcher.Classify(text, sess), sess)
}
