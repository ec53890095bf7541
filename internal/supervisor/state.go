package supervisor

// State is the manager's lifecycle state.
type State int

const (
	StateLoadingConfig State = iota
	StateDaemonized
	StateSpawning
	StateWaiting
	StateReconfiguring
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateLoadingConfig:
		return "loading_config"
	case StateDaemonized:
		return "daemonized"
	case StateSpawning:
		return "spawning"
	case StateWaiting:
		return "waiting"
	case StateReconfiguring:
		return "reconfiguring"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
