package scope

import (
	"time"

	"digiscope-client/internal/channel"
	"digiscope-client/internal/protocol"
)

// EventType classifies what changed
type EventType int

const (
	// BurstAcquired follows every burst that passed the integrity check
	BurstAcquired EventType = iota
	// BurstRejected follows every burst that failed the integrity check
	BurstRejected
	// SettingEchoed follows a status frame reporting an instrument setting
	SettingEchoed
	// ResolutionChanged follows a change of the displayed time or volts per division
	ResolutionChanged
	// Disconnected follows the end of a session
	Disconnected
)

func (t EventType) String() string {
	switch t {
	case BurstAcquired:
		return "burst_acquired"
	case BurstRejected:
		return "burst_rejected"
	case SettingEchoed:
		return "setting_echoed"
	case ResolutionChanged:
		return "resolution_changed"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// Event is an immutable notification for observers on other goroutines
type Event struct {
	Type     EventType
	Time     time.Time
	Command  protocol.Command   // SettingEchoed
	Session  SessionState       // state after the change
	Channels []channel.Snapshot // BurstAcquired, ResolutionChanged
	Err      error              // BurstRejected, Disconnected
}

// Channel returns the snapshot of kind k carried by the event
func (e Event) Channel(k channel.Kind) (channel.Snapshot, bool) {
	for _, s := range e.Channels {
		if s.Kind == k {
			return s, true
		}
	}
	return channel.Snapshot{}, false
}

// SessionState is the client's view of the instrument
type SessionState struct {
	Connected         bool
	SamplingRateHz    float64
	NumSamples        int
	Bandpass          bool
	TriggerIndex      int
	DeviceStatus      protocol.DeviceStatus
	Coupling          protocol.Coupling
	VoltsPerDivision  protocol.VoltsPerDivision
	TimePerDivision   protocol.TimePerDivision
	TriggerMode       protocol.TriggerMode
	TriggerType       protocol.TriggerType
	TriggerThreshold  float64 // volts
	FunctionGenerator FunctionGenerator
	Bursts            int
	IntegrityFailures int
}
