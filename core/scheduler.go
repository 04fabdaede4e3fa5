package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// idleTicks is the dispatch horizon when no timer is pending.
const idleTicks = 100 * 1000

var (
	timerList   *Timer
	currentTime uint32
	timerKick   func()
)

// SetTimerKick registers a callback that forces the hardware timer to
// re-arm; it runs whenever a new timer lands at the head of the schedule.
func SetTimerKick(kick func()) {
	timerKick = kick
}

// ScheduleTimer adds a timer to the schedule
func ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	insertTimer(t)
	if timerList == t && timerKick != nil {
		timerKick()
	}
}

// insertTimer inserts a timer in sorted order by WakeTime. Comparisons are
// wrap-aware so scheduling keeps working across counter rollover.
func insertTimer(t *Timer) {
	if timerList == nil || TimerIsBefore(t.WakeTime, timerList.WakeTime) {
		t.Next = timerList
		timerList = t
		return
	}

	current := timerList
	for current.Next != nil && TimerIsBefore(current.Next.WakeTime, t.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// UnscheduleTimer removes a timer from the schedule if present.
func UnscheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if timerList == t {
		timerList = t.Next
		t.Next = nil
		return
	}
	for current := timerList; current != nil; current = current.Next {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return
		}
	}
}

// runDueTimers pops and runs every timer due at the given time. Caller
// holds the interrupt mask.
func runDueTimers(now uint32) {
	for timerList != nil && !TimerIsBefore(now, timerList.WakeTime) {
		timer := timerList
		timerList = timer.Next
		timer.Next = nil

		result := timer.Handler(timer)

		if result == SF_RESCHEDULE {
			insertTimer(timer)
		}
	}
}

// TimerDispatch processes due timers from a polling loop.
func TimerDispatch() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	runDueTimers(currentTime)
}

// TimerDispatchNext runs due timers and returns the next wake time. Called
// from the hardware timer interrupt with interrupts already masked.
func TimerDispatchNext(now uint32) uint32 {
	currentTime = now
	runDueTimers(now)
	if timerList == nil {
		return now + idleTicks
	}
	return timerList.WakeTime
}
