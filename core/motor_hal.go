package core

// MotorDriver is the abstract interface for the H-bridge motor channels.
// Each channel drives one filament feed motor through a pair of bridge
// inputs; the driver owns the mapping from (drive, dir) state to pin levels.
type MotorDriver interface {
	// WriteRole updates one sub-pin of a channel and rederives the bridge
	// outputs. Writing the drive role with false coasts the channel.
	WriteRole(channel MotorChannel, role MotorRole, value bool) error

	// ToggleRole flips the stored state bit of a channel sub-pin.
	ToggleRole(channel MotorChannel, role MotorRole) error

	// ReadRole returns the stored state bit of a channel sub-pin.
	ReadRole(channel MotorChannel, role MotorRole) (bool, error)

	// Coast releases a channel: both bridge inputs low.
	Coast(channel MotorChannel) error

	// Forward runs a channel forward (high input driven, low input low).
	Forward(channel MotorChannel) error

	// Reverse runs a channel in reverse.
	Reverse(channel MotorChannel) error

	// CoastAll releases every channel. Called from shutdown paths.
	CoastAll()
}

// Global singleton used by core code.
var motorDriver MotorDriver

// SetMotorDriver is called by target-specific code to register its driver.
func SetMotorDriver(d MotorDriver) {
	motorDriver = d
}

// MustMotor returns the configured driver or panics if missing.
func MustMotor() MotorDriver {
	if motorDriver == nil {
		panic("Motor driver not configured")
	}
	return motorDriver
}
