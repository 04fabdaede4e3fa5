package core

import (
	"errors"
	"strings"
	"sync"
)

// CommandHandler handles one command. The handler decodes its own
// arguments from the frame data.
type CommandHandler func(data *[]byte) error

// Command is one entry in the wire protocol: a host-to-MCU command when
// it has a handler, an MCU-to-host response when it does not.
type Command struct {
	ID      uint16
	Name    string
	Format  string // dictionary format string, e.g. "oid=%c pin=%u"
	Handler CommandHandler
}

// CommandRegistry assigns wire IDs in registration order and dispatches
// incoming frames to their handlers.
type CommandRegistry struct {
	mu         sync.RWMutex
	commands   map[uint16]*Command
	nameToID   map[string]uint16
	nextID     uint16
	dictionary string
}

var globalRegistry = NewCommandRegistry()

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// RegisterCommand registers a command handler in the global registry,
// the equivalent of DECL_COMMAND in the C firmware.
func RegisterCommand(name string, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, handler)
}

// RegisterResponse registers a response message (MCU to host) in the
// global registry. A response is a command with no handler.
func RegisterResponse(name string, format string) uint16 {
	return globalRegistry.Register(name, format, nil)
}

// Register adds a command, returning its wire ID. Registering the same
// name twice returns the original ID.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}

	id := r.nextID
	r.nextID++
	r.commands[id] = &Command{ID: id, Name: name, Format: format, Handler: handler}
	r.nameToID[name] = id
	r.rebuildDictionary()
	return id
}

func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler for a command ID.
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok {
		return errors.New("unknown command ID: " + itoa(int(cmdID)))
	}
	return cmd.Handler(data)
}

// GetDictionary returns the plain-text command list, one format string
// per line in ID order.
func (r *CommandRegistry) GetDictionary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dictionary
}

// GetCommandsAndResponses splits the registry into the command and
// response maps of the JSON dictionary, keyed by full format string.
func (r *CommandRegistry) GetCommandsAndResponses() (map[string]int, map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands := make(map[string]int)
	responses := make(map[string]int)

	for i := uint16(0); i < r.nextID; i++ {
		cmd, ok := r.commands[i]
		if !ok {
			continue
		}
		formatStr := cmd.Name
		if cmd.Format != "" {
			formatStr = cmd.Name + " " + cmd.Format
		}
		if cmd.Handler != nil {
			commands[formatStr] = int(cmd.ID)
		} else {
			responses[formatStr] = int(cmd.ID)
		}
	}
	return commands, responses
}

// rebuildDictionary regenerates the plain-text listing. Caller must hold
// the lock.
func (r *CommandRegistry) rebuildDictionary() {
	var b strings.Builder
	for i := uint16(0); i < r.nextID; i++ {
		cmd, ok := r.commands[i]
		if !ok {
			continue
		}
		b.WriteString(cmd.Name)
		if cmd.Format != "" {
			b.WriteByte(' ')
			b.WriteString(cmd.Format)
		}
		b.WriteByte('\n')
	}
	r.dictionary = b.String()
}

// DispatchCommand dispatches through the global registry.
func DispatchCommand(cmdID uint16, data *[]byte) error {
	return globalRegistry.Dispatch(cmdID, data)
}

func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}

func GetCommandCount() int {
	return globalRegistry.Count()
}
