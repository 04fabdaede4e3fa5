package core

import (
	"sync/atomic"
	"unsafe"

	"gomcu/protocol"
)

// FirmwareState holds the global firmware state.
type FirmwareState struct {
	configCRC  uint32 // atomic
	isShutdown uint32 // atomic bool
	moveCount  uint16
}

var globalState = &FirmwareState{
	moveCount: 16, // command queue size, the minimum Klipper accepts
}

// InitCoreCommands registers the core protocol commands.
//
// Registration order matters for the bootstrap pair: the host hardcodes
// identify_response as ID 0 and identify as ID 1 so it can pull the
// dictionary before it has a dictionary.
func InitCoreCommands() {
	RegisterCommand("identify_response", "offset=%u data=%*s", nil)   // ID 0
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify) // ID 1

	RegisterCommand("get_uptime", "", handleGetUptime)
	RegisterCommand("get_clock", "", handleGetClock)
	RegisterCommand("get_config", "", handleGetConfig)
	RegisterCommand("config_reset", "", handleConfigReset)
	RegisterCommand("finalize_config", "crc=%u", handleFinalizeConfig)
	RegisterCommand("allocate_oids", "count=%c", handleAllocateOids)
	RegisterCommand("emergency_stop", "", handleEmergencyStop)
	RegisterCommand("reset", "", handleReset)

	RegisterCommand("debug_read", "order=%c addr=%u", handleDebugRead)
	RegisterResponse("debug_result", "val=%u")

	RegisterResponse("clock", "clock=%u")
	RegisterResponse("uptime", "high=%u clock=%u")
	RegisterResponse("config", "is_config=%c crc=%u is_shutdown=%c move_count=%hu")
	RegisterResponse("shutdown", "clock=%u reason=%*s")

	// MCU and CLOCK_FREQ are platform constants registered by the target.
	RegisterConstant("STATS_SUMSQ_BASE", uint32(256))
}

// handleIdentify returns chunks of the data dictionary.
func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))

	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func handleGetUptime(data *[]byte) error {
	uptime := GetUptime()
	SendResponse("uptime", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(uptime>>32))
		protocol.EncodeVLQUint(output, uint32(uptime))
	})
	return nil
}

func handleGetClock(data *[]byte) error {
	clock := GetTime()
	SendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})
	return nil
}

func handleGetConfig(data *[]byte) error {
	crc := atomic.LoadUint32(&globalState.configCRC)
	isShutdown := atomic.LoadUint32(&globalState.isShutdown) != 0
	isConfig := crc != 0

	SendResponse("config", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, boolToUint(isConfig))
		protocol.EncodeVLQUint(output, crc)
		protocol.EncodeVLQUint(output, boolToUint(isShutdown))
		protocol.EncodeVLQUint(output, uint32(globalState.moveCount))
	})
	return nil
}

func boolToUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func handleConfigReset(data *[]byte) error {
	atomic.StoreUint32(&globalState.configCRC, 0)
	return nil
}

func handleFinalizeConfig(data *[]byte) error {
	crc, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	atomic.StoreUint32(&globalState.configCRC, crc)
	return nil
}

// handleAllocateOids reserves object IDs. The object tables grow on
// demand, so the count is only validated by the individual config
// commands.
func handleAllocateOids(data *[]byte) error {
	_, err := protocol.DecodeVLQUint(data)
	return err
}

// handleEmergencyStop stops everything that moves or samples.
func handleEmergencyStop(data *[]byte) error {
	enterShutdown()
	return nil
}

// enterShutdown marks the firmware shut down and forces every output to
// its safe state. Motor channels coast so a jammed feed path does not
// stay under power.
func enterShutdown() {
	atomic.StoreUint32(&globalState.isShutdown, 1)
	if motorDriver != nil {
		motorDriver.CoastAll()
	}
	ShutdownAllAnalogIn()
	ShutdownAllDigitalOut()
	ShutdownAllHardwarePWM()
	ShutdownAllI2C()
	ShutdownSPI()
}

// TryShutdown triggers a firmware shutdown with a reason message. Used
// by safety mechanisms like ADC range checking and by drivers reporting
// unrecoverable faults.
func TryShutdown(reason string) {
	alreadyDown := atomic.LoadUint32(&globalState.isShutdown) != 0
	enterShutdown()
	if alreadyDown {
		return
	}
	clock := GetTime()
	SendResponse("shutdown", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
		protocol.EncodeVLQBytes(output, []byte(reason))
	})
}

// IsShutdown reports whether the firmware is in the shutdown state.
func IsShutdown() bool {
	return atomic.LoadUint32(&globalState.isShutdown) != 0
}

// ResetFirmwareState clears config and shutdown state for reconnection.
func ResetFirmwareState() {
	atomic.StoreUint32(&globalState.configCRC, 0)
	atomic.StoreUint32(&globalState.isShutdown, 0)
}

// SendResponse sends a response message through the global transport.
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(responseName)
	if !ok {
		// All responses are pre-registered; a miss is a firmware bug.
		panic("Response not registered: " + responseName)
	}
	globalTransport.SendCommand(cmd.ID, args)
}

// GetCommandByName retrieves a command by name.
func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Global transport for sending responses, set by the target's main.
var globalTransport *protocol.Transport

func SetGlobalTransport(transport *protocol.Transport) {
	globalTransport = transport
}

// Platform reset handler, set by target-specific code.
var globalResetHandler func()

// resetPending defers the reset until the ACK for the reset command has
// gone out.
var resetPending uint32 // atomic bool

func SetResetHandler(handler func()) {
	globalResetHandler = handler
}

// handleDebugRead reads a raw memory address, used by the host to pull
// factory calibration words.
func handleDebugRead(data *[]byte) error {
	order, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	addr, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	var val uint32
	switch order {
	case 1:
		val = uint32(*(*uint16)(unsafe.Pointer(uintptr(addr))))
	case 2:
		val = *(*uint32)(unsafe.Pointer(uintptr(addr)))
	}

	SendResponse("debug_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, val)
	})
	return nil
}

// handleReset schedules a hardware reset. The reset itself runs from the
// main loop after the ACK has been sent.
func handleReset(_ *[]byte) error {
	atomic.StoreUint32(&resetPending, 1)
	return nil
}

// CheckPendingReset executes a requested reset. Called from the main
// loop once pending messages have drained.
func CheckPendingReset() {
	if atomic.LoadUint32(&resetPending) != 0 && globalResetHandler != nil {
		globalResetHandler()
	}
}
