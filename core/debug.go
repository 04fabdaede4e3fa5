package core

// DebugWriter writes one debug line to wherever the platform routes it.
type DebugWriter func(string)

// TimingEvent captures a timing-critical event for post-mortem analysis.
type TimingEvent struct {
	EventType uint8
	OID       uint8
	Clock     uint32
	Value1    uint32
	Value2    uint32
}

// Event type codes.
const (
	EvtMotorSet      = 1 // motor channel state change
	EvtTimerSchedule = 2
	EvtTimerFire     = 3
	EvtTimerPast     = 4 // timer deadline already behind the counter
	EvtBusRetry      = 5 // bus transfer reported a recoverable error
)

const TimingRingSize = 32

var (
	// No-op until the platform installs a writer.
	debugPrintln DebugWriter = func(s string) {}

	// Off by default; debug output on the shared RS-485 line costs real
	// time.
	debugEnabled bool

	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8
	timingEnabled  = true

	debugChan chan string
)

// SetDebugWriter routes debug output to the platform (UART, console).
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug drain. Call from main after
// SetDebugWriter.
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message synchronously.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a message without blocking; a full queue drops it.
func DebugAsync(msg string) {
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// RecordTiming captures a timing event in the ring buffer. Non-blocking,
// safe from interrupt context.
func RecordTiming(eventType, oid uint8, clock, value1, value2 uint32) {
	if !timingEnabled {
		return
	}
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		OID:       oid,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (idx + 1) % TimingRingSize
}

// DumpTimingRing prints the captured events oldest first. Call after
// stopping time-critical code.
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TIMING] === Timing Ring Dump ===")
	start := timingRingHead
	for i := uint8(0); i < TimingRingSize; i++ {
		idx := (start + i) % TimingRingSize
		evt := &timingRing[idx]
		if evt.EventType == 0 {
			continue
		}

		var name string
		switch evt.EventType {
		case EvtMotorSet:
			name = "MOTOR_SET"
		case EvtTimerSchedule:
			name = "TIMER_SCHED"
		case EvtTimerFire:
			name = "TIMER_FIRE"
		case EvtTimerPast:
			name = "TIMER_PAST!"
		case EvtBusRetry:
			name = "BUS_RETRY"
		default:
			name = "UNKNOWN"
		}

		debugPrintln("[TIMING] " + name +
			" oid=" + itoa(int(evt.OID)) +
			" clock=" + itoa(int(evt.Clock)) +
			" v1=" + itoa(int(evt.Value1)) +
			" v2=" + itoa(int(evt.Value2)))
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the capture buffer.
func ClearTimingRing() {
	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
}
