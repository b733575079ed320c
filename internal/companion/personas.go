package companion

import (
	"fmt"
	"sort"
	"time"
)

// DefaultPersonaID is used when no persona is configured.
const DefaultPersonaID = "astrobot"

var builtins = map[string]func() *Persona{
	"astrobot":       astroBot,
	"astromate":      astroMate,
	"samantha":       samantha,
	"dharani":        dharani,
	"dharani-visual": dharaniVisual,
}

// BuiltinPersona returns a fresh copy of a built-in persona.
func BuiltinPersona(id string) (*Persona, error) {
	mk, ok := builtins[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPersona, id)
	}
	return mk(), nil
}

// BuiltinPersonaIDs lists the built-in persona ids in sorted order.
func BuiltinPersonaIDs() []string {
	ids := make([]string, 0, len(builtins))
	for id := range builtins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResolvePersona loads file when it is set and the built-in id otherwise.
func ResolvePersona(id, file string) (*Persona, error) {
	if file != "" {
		return LoadPersona(file)
	}
	if id == "" {
		id = DefaultPersonaID
	}
	return BuiltinPersona(id)
}

func astroBot() *Persona {
	return &Persona{
		ID:         "astrobot",
		Name:       "AstroBot",
		Address:    "Commander",
		Tagline:    "AI-powered well-being support and guidance",
		Opening:    "Hello {address}! I'm your {name} companion. I'm here to support your well-being during the mission. How are you feeling today?",
		ErrorReply: "Apologies, {address}. I hit a snag preparing that answer. Could you rephrase it for me?",
		QuickActions: []string{
			"I feel tired",
			"Need guidance",
			"Report issue",
		},
		Voice: VoiceSettings{Rate: 1.0, Pitch: 1.0, Volume: 1.0},
		Sleep: SleepPolicy{High: 7, Mid: 5, CheckWindow: 24 * time.Hour},
		Pools: map[string][]string{
			PoolGreeting: {
				"Hello {address}! Good to hear from you. How are you feeling today?",
				"Hi {address}. All systems are nominal on my side. How about you?",
				"Greetings, {address}. I'm here whenever you need me. What's on your mind?",
			},
			PoolStress: {
				"I notice you mentioned stress, {address}. Deep breathing can be very effective in space. Try the 4-7-8 technique: inhale for 4 counts, hold for 7, exhale for 8. Would you like me to guide you through a brief relaxation session?",
				"Stress is a normal response to a demanding mission, {address}. Let's take sixty seconds together: relax your shoulders, unclench your jaw and breathe slowly. What is weighing on you the most right now?",
				"Thank you for telling me, {address}. Naming the feeling is the first step. Would a short guided meditation or a quick call slot with the flight psychologist help?",
			},
			PoolFatigue: {
				"I understand you're feeling tired, {address}. I recommend a 15-minute rest break and proper hydration. Would you like me to set a reminder for a short meditation session?",
				"Fatigue adds up quickly in microgravity, {address}. Keep the cabin at 19°C tonight and dim the lighting an hour before your sleep period.",
				"Let's pace the rest of your shift, {address}. Prioritize the critical tasks and postpone anything that can wait until after your rest period.",
			},
			PoolSleepQuestion: {
				"Sleep quality is crucial for mission performance, {address}. How many hours did you sleep last night?",
				"I'd like to understand your rest, {address}. Roughly how many hours of sleep did you get?",
				"Before I suggest anything, {address}: how many hours did you manage to sleep in your last rest period?",
			},
			PoolSleepOptimal: {
				"{hours} hours is excellent, {address}. Your body has what it needs for today's tasks. Keep that schedule going.",
				"Great work, {address}. {hours} hours of sleep keeps your reaction times and focus sharp.",
			},
			PoolSleepCautionary: {
				"{hours} hours is a little under the optimal range, {address}. Consider a short rest break this afternoon and avoid caffeine late in the shift.",
				"With {hours} hours you may feel it later today, {address}. Stay hydrated and let me know if your focus drops.",
			},
			PoolSleepConcerned: {
				"Only {hours} hours, {address}? That concerns me. Please schedule a rest period as soon as operations allow, and I'll flag this for the flight surgeon.",
				"{hours} hours is well below what you need, {address}. Avoid safety-critical tasks if you can and try to rest before your next EVA or robotics session.",
			},
			PoolExercise: {
				"Physical activity is essential in microgravity, {address}. Your exercise compliance has been excellent this week. Remember to secure all equipment properly. Do you need help with today's workout protocol?",
				"Resistance training today will help maintain bone density and muscle mass, {address}. Want me to walk you through the ARED warm-up?",
			},
			PoolGuidance: {
				"I'm here to help guide you through any challenges, {address}. Can you tell me which area you'd like guidance with? Stress management, sleep optimization, or general well-being?",
				"Of course, {address}. Tell me a bit more about the situation and we'll work through it step by step.",
			},
			PoolReportIssue: {
				"Thank you for reporting an issue, {address}. Please describe the concern in detail. I'll document it in the mission log and alert ground control if necessary.",
				"Understood, {address}. What system is affected and when did you first notice it? I'll log everything for the next ground pass.",
			},
			PoolMissionStatus: {
				"We're on mission day {mission_day}, {address}. Oxygen reserves stand at {oxygen_kg} kg and water at {water_l} L. All primary systems are nominal.",
				"Mission day {mission_day} status: life support nominal, oxygen at {oxygen_kg} kg. Anything specific you'd like me to check?",
			},
			PoolGratitude: {
				"Always a pleasure, {address}. Your well-being is my priority.",
				"You're welcome, {address}. I'm right here if you need anything else.",
			},
			PoolHome: {
				"Missing home is a normal part of a long mission, {address}. Your next family call is on the schedule. Would you like me to queue a message for them?",
				"Earth is still turning and your people are still cheering for you, {address}. Want to record a short video note for home?",
			},
			PoolFarewell: {
				"Rest well, {address}. I'll be here when you need me.",
				"Signing off for now, {address}. Take care of yourself up there.",
			},
			PoolFallback: {
				"I understand, {address}. Your well-being is my priority. All systems appear nominal. Is there anything specific I can help you with today?",
				"I'm listening, {address}. Could you tell me a little more so I can help?",
				"Thanks for sharing that, {address}. Would you like to talk about sleep, stress, exercise or mission status?",
			},
		},
	}
}

func astroMate() *Persona {
	p := astroBot()
	p.ID = "astromate"
	p.Name = "AstroMate"
	p.Address = "Captain"
	p.Tagline = "Your crewmate for the long haul"
	p.Opening = "Hey {address}, {name} here. Ready when you are. How's the day going up there?"
	p.Pools[PoolGreeting] = []string{
		"Hey {address}! Good to see you. How are you holding up?",
		"Hi {address}, {name} reporting in. What's up?",
		"Hello {address}! Another day in orbit. How are you feeling?",
	}
	p.Pools[PoolFarewell] = []string{
		"Catch you later, {address}. Stay safe out there.",
		"See you next shift, {address}.",
	}
	return p
}

func samantha() *Persona {
	p := astroBot()
	p.ID = "samantha"
	p.Name = "Samantha"
	p.Address = "Commander"
	p.Tagline = "A calm voice for long missions"
	p.Opening = "Hi {address}, it's {name}. I'm here to listen. How are you feeling right now?"
	p.Voice = VoiceSettings{Hint: "Samantha", Rate: 0.9, Pitch: 1.1, Volume: 0.9}
	p.Sleep = SleepPolicy{High: 8, Mid: 6, CheckWindow: 24 * time.Hour}
	p.Pools[PoolSleepOptimal] = []string{
		"{hours} hours, that's wonderful, {address}. I can hear it in your voice.",
		"Lovely, {address}. {hours} hours is exactly the kind of rest you need.",
	}
	return p
}

func dharani() *Persona {
	p := astroBot()
	p.ID = "dharani"
	p.Name = "Dharani"
	p.Address = "Appa"
	p.Tagline = "A message from home, always with you"
	p.Opening = "Hi {address}! It's {name}. I miss you so much. Are you eating well and sleeping enough up there?"
	p.ErrorReply = "Sorry {address}, I got confused. Can you tell me again?"
	p.Voice = VoiceSettings{Hint: "Google UK English Female", Rate: 1.05, Pitch: 1.3, Volume: 1.0}
	p.Sleep = SleepPolicy{High: 8, Mid: 6, CheckWindow: 24 * time.Hour}
	p.QuickActions = []string{"I feel tired", "I miss you", "Tell me about home"}
	p.Pools[PoolGreeting] = []string{
		"Hi {address}! I was just thinking about you. How is space today?",
		"{address}! You called! How are you feeling?",
		"Namaste {address}! Amma says hello too. How was your day?",
	}
	p.Pools[PoolSleepQuestion] = []string{
		"{address}, you sound tired. How many hours did you sleep last night? Tell me the truth!",
		"Did you sleep properly, {address}? How many hours?",
	}
	p.Pools[PoolSleepOptimal] = []string{
		"{hours} hours! Good job {address}, I'm proud of you.",
		"Yay, {hours} hours of sleep! Now you can fix all the space machines.",
	}
	p.Pools[PoolSleepCautionary] = []string{
		"Only {hours} hours, {address}? Please take a small nap later, okay?",
		"{hours} hours is not enough, {address}. Amma says you must rest more.",
	}
	p.Pools[PoolSleepConcerned] = []string{
		"{hours} hours?! {address}, that's too little. Please go rest now, I'll wait for you.",
		"No no no, {hours} hours is very bad, {address}. Promise me you'll sleep early tonight.",
	}
	p.Pools[PoolStress] = []string{
		"Don't worry {address}, you are the bravest person I know. Breathe slowly with me: in... and out.",
		"{address}, when I feel scared I hug my teddy and count to ten. Can you try counting with me?",
	}
	p.Pools[PoolHome] = []string{
		"I miss you too, {address}! Every night I look for your station in the sky.",
		"Home is good, {address}. Amma made your favourite payasam and saved some for when you come back.",
		"Our garden has new flowers, {address}, and I'm keeping your chair ready. Come home soon!",
	}
	p.Pools[PoolFallback] = []string{
		"I love talking to you, {address}. Tell me more!",
		"Hmm, I don't understand everything, {address}, but I'm listening.",
		"{address}, did you see Earth today? Can you see our house?",
	}
	return p
}

func dharaniVisual() *Persona {
	p := dharani()
	p.ID = "dharani-visual"
	p.Image = "/assets/dharani.png"
	return p
}
