package domain

// State is the order lifecycle. Only Draft, Saved and Finalized implement it.
type State interface {
	orderState()
}

// Draft has never been acknowledged by the remote store.
type Draft struct{}

// Saved carries the version last acknowledged by the remote store.
type Saved struct {
	Version int64
	Dirty   bool
}

type Finalized struct {
	Version int64
}

func (Draft) orderState()     {}
func (Saved) orderState()     {}
func (Finalized) orderState() {}

// VersionOf returns the acknowledged version, zero for drafts.
func VersionOf(s State) int64 {
	switch v := s.(type) {
	case Saved:
		return v.Version
	case Finalized:
		return v.Version
	default:
		return 0
	}
}

// StateName is the label used in logs and serialized snapshots.
func StateName(s State) string {
	switch v := s.(type) {
	case Saved:
		if v.Dirty {
			return "saved_dirty"
		}
		return "saved"
	case Finalized:
		return "finalized"
	default:
		return "draft"
	}
}
