package ir

// Pushvars are opaque client-supplied key/value pairs sent with a push.
// Hooks consult them (e.g. to honour a bypass) and the engine reads a few
// well-known ones such as NON_FAST_FORWARD.
type Pushvars map[string][]byte

// Get returns the value of a pushvar as a string and whether it was set.
func (p Pushvars) Get(name string) (string, bool) {
	v, ok := p[name]
	return string(v), ok
}

// RebasePair records that OldID was rewritten to NewID by a pushrebase.
type RebasePair struct {
	OldID ChangesetID `json:"old_id"`
	NewID ChangesetID `json:"new_id"`
}

// ClientInfo identifies who sent a push and from where. It feeds
// permission checks, rate limiting and the commit audit log.
type ClientInfo struct {
	User     string `json:"user,omitempty" yaml:"user,omitempty"`
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
}

// MutationEntry records that a commit (Successor) was produced by
// rewriting other commits (amend, rebase, fold, split).
type MutationEntry struct {
	Successor    NativeID          `json:"successor" yaml:"successor"`
	Predecessors []NativeID        `json:"predecessors" yaml:"predecessors"`
	Split        []NativeID        `json:"split,omitempty" yaml:"split,omitempty"`
	Op           string            `json:"op" yaml:"op"`
	User         string            `json:"user" yaml:"user"`
	Timestamp    int64             `json:"timestamp" yaml:"timestamp"`
	Extra        map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}
