package core

// TimerFreq is the tick rate of the system timebase. The hardware timer is
// prescaled so one tick is one microsecond.
const TimerFreq = 1000000

// TimeSource reads the hardware timebase. Registered by target code; when
// absent, time falls back to the manually advanced tick counter so host
// builds and tests can drive it.
type TimeSource interface {
	ReadTime() uint32
}

var (
	timeSource  TimeSource
	systemTicks uint32
	bootTime    uint64 // Time at boot for uptime calculation
)

// SetTimeSource is called by target-specific code to register its timer.
func SetTimeSource(ts TimeSource) {
	timeSource = ts
}

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	if timeSource != nil {
		return timeSource.ReadTime()
	}
	return getSystemTicks()
}

// SetTime sets the current system time (for testing/host integration)
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}

// GetUptime returns 64-bit uptime in timer ticks
func GetUptime() uint64 {
	return uint64(GetTime())
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return us * (TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return ticks / (TimerFreq / 1000000)
}

// TimerIsBefore reports whether t1 is before t2, tolerating counter wrap.
func TimerIsBefore(t1, t2 uint32) bool {
	return int32(t1-t2) < 0
}

// TimerInit initializes the system timebase bookkeeping.
func TimerInit() {
	bootTime = uint64(GetTime())
}

// ProcessTimers processes scheduled timers from a polling loop.
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
