package pix2pix

// State is the stage an inference cycle is in.
type State uint8

const (
	// StateIdle accepts a new request.
	StateIdle State = iota
	StateCapturing
	StateResampling
	StatePacking
	StateInferring
	StateDecoding
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCapturing:
		return "Capturing"
	case StateResampling:
		return "Resampling"
	case StatePacking:
		return "Packing"
	case StateInferring:
		return "Inferring"
	case StateDecoding:
		return "Decoding"
	default:
		return "Unknown"
	}
}

// suspension is where a parked cycle waits for the frame scheduler.
type suspension uint8

const (
	notParked suspension = iota

	// parkedEndOfFrame waits for the host to render the current frame
	// (layer changes take effect) before capturing.
	parkedEndOfFrame

	// parkedNextFrame waits one frame after decoding before going idle.
	parkedNextFrame
)

// Stats counts pipeline activity since creation.
type Stats struct {
	Requested uint64 // accepted requests
	Dropped   uint64 // requests ignored because a cycle was in flight
	Completed uint64 // cycles that reached the end of decoding
	Failed    uint64 // cycles aborted by an error
}
