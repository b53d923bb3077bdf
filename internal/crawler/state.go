package crawler

// State is the lifecycle state of one repository task.
//
// Transitions: Queued → Cloning → {CloneFailed | Cloned} → Scanning →
// Scanned → CleaningUp → Done. CloneFailed skips Scanning and goes
// directly to CleaningUp/Done.
type State int

const (
	Queued State = iota
	Cloning
	CloneFailed
	Cloned
	Scanning
	Scanned
	CleaningUp
	Done
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Cloning:
		return "cloning"
	case CloneFailed:
		return "clone_failed"
	case Cloned:
		return "cloned"
	case Scanning:
		return "scanning"
	case Scanned:
		return "scanned"
	case CleaningUp:
		return "cleaning_up"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}
