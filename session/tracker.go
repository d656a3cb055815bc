package session

// Tracker holds the identity of the experiment currently accepting
// sensor samples. The zero value is Idle. One tracker belongs to one
// session; a second connection gets its own.
type Tracker struct {
	current string
	active  bool
}

// Current returns the active experiment number, if any.
func (t *Tracker) Current() (string, bool) {
	return t.current, t.active
}

// Active reports whether an experiment is accepting samples.
func (t *Tracker) Active() bool {
	return t.active
}

func (t *Tracker) begin(expNumber string) {
	t.current = expNumber
	t.active = true
}

func (t *Tracker) end() {
	t.current = ""
	t.active = false
}
