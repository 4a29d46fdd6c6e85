package matrix

// PowerState is the device power mode as reported by the %9962. query.
type PowerState string

// Power states. PowerOff cuts power to connected HDBaseT receivers;
// PowerStandby keeps PoC power up.
const (
	PowerOn      PowerState = "PWON"
	PowerOff     PowerState = "PWOFF"
	PowerStandby PowerState = "STANDBY"
)

// Status is a snapshot of the last known device state.
//
// Outputs maps output number (1..NumOutputs) to the routed input number;
// value 0 means the output is switched off or has never been observed.
// The routing table is authoritative only immediately after a successful
// full-status poll; between polls it is updated optimistically by mutating
// commands.
type Status struct {
	Outputs  map[int]int
	Model    string
	Firmware string
	Locked   bool
	Power    PowerState
}

// InputFor returns the input routed to the given output, or 0 if the
// output is off or unknown.
func (s Status) InputFor(output int) int {
	return s.Outputs[output]
}

// clone returns a deep copy so callers can read snapshots without locking.
func (s Status) clone() Status {
	out := s
	out.Outputs = make(map[int]int, len(s.Outputs))
	for k, v := range s.Outputs {
		out.Outputs[k] = v
	}
	return out
}

// Stats holds operational counters for the client and coordinator.
type Stats struct {
	CommandsTx      uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64 // Successful re-dials after a connection loss
	Refreshes       uint64 // Completed refresh cycles
	RefreshFailures uint64 // Cycles whose mandatory status fetch failed
	Connected       bool
}
