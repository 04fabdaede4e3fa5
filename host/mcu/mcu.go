// Package mcu speaks the Klipper side of the link from the host: it
// bootstraps the identify/dictionary exchange and sends dictionary
// commands by name.
package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gomcu/host/serial"
	"gomcu/protocol"
)

// Identify bootstrap IDs, fixed before the dictionary is known.
const (
	identifyResponseID = 0
	identifyRequestID  = 1
)

// MCU is a connection to one microcontroller.
type MCU struct {
	transport *protocol.HostTransport
	port      serial.Port

	dictionary     *Dictionary
	dictionaryData []byte

	connected bool
}

// Dictionary is the parsed data dictionary the device serves over
// identify.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

func NewMCU() *MCU {
	return &MCU{}
}

// Connect opens the device with the default Klipper link settings.
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	m.port = port
	m.transport = protocol.NewHostTransport(port)
	m.connected = true

	m.transport.SetResponseHandler(m.handleResponse)

	// Give a freshly powered device a moment before the first frame.
	time.Sleep(100 * time.Millisecond)

	return nil
}

func (m *MCU) Close() error {
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			return err
		}
	}
	m.connected = false
	return nil
}

// RetrieveDictionary pulls the full dictionary in identify chunks,
// inflates it and parses the JSON.
func (m *MCU) RetrieveDictionary() error {
	if !m.connected {
		return fmt.Errorf("not connected")
	}

	var dictBuffer bytes.Buffer
	offset := uint32(0)
	chunkSize := uint8(40)
	maxIterations := 1000

	for i := 0; i < maxIterations; i++ {
		chunk, err := m.sendIdentify(offset, chunkSize)
		if err != nil {
			return fmt.Errorf("dictionary chunk at offset %d: %w", offset, err)
		}

		if len(chunk) == 0 {
			break
		}

		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))

		// A short chunk marks the end of the dictionary.
		if len(chunk) < int(chunkSize) {
			break
		}
	}

	m.dictionaryData = dictBuffer.Bytes()

	if inflated, err := inflate(m.dictionaryData); err == nil {
		m.dictionaryData = inflated
	}

	if err := m.parseDictionary(); err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}

	return nil
}

// sendIdentify requests one dictionary chunk and validates the echoed
// offset.
func (m *MCU) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	err := m.transport.SendCommand(identifyRequestID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send identify: %w", err)
	}

	resp, err := m.transport.ReceiveResponse(1 * time.Second)
	if err != nil {
		return nil, fmt.Errorf("no identify response: %w", err)
	}

	payload := resp.Payload

	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("bad response ID: %w", err)
	}
	if cmdID != identifyResponseID {
		return nil, fmt.Errorf("unexpected response ID %d", cmdID)
	}

	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("bad response offset: %w", err)
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: sent %d, got %d", offset, respOffset)
	}

	data, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("bad response data: %w", err)
	}

	return data, nil
}

// inflate decompresses a zlib-wrapped dictionary. Devices may also
// serve it uncompressed, in which case the caller keeps the original.
func inflate(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x78 {
		return nil, fmt.Errorf("not zlib data")
	}

	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

func (m *MCU) parseDictionary() error {
	dict := &Dictionary{}
	if err := json.Unmarshal(m.dictionaryData, dict); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	m.dictionary = dict
	return nil
}

// handleResponse runs on the transport's read loop for every response.
func (m *MCU) handleResponse(cmdID uint16, data *[]byte) error {
	return nil
}

func (m *MCU) GetDictionary() *Dictionary {
	return m.dictionary
}

func (m *MCU) GetDictionaryRaw() []byte {
	return m.dictionaryData
}

// ResponseName resolves a response ID back to its dictionary key.
func (m *MCU) ResponseName(id uint16) string {
	if m.dictionary != nil {
		for name, respID := range m.dictionary.Responses {
			if respID == int(id) {
				return name
			}
		}
	}
	return fmt.Sprintf("response_%d", id)
}

// PrintDictionary writes a dictionary summary to stdout.
func (m *MCU) PrintDictionary() {
	if m.dictionary == nil {
		fmt.Println("No dictionary loaded")
		return
	}

	fmt.Println("\n=== MCU Dictionary ===")
	fmt.Printf("Version: %s\n", m.dictionary.Version)
	fmt.Printf("Build: %s\n", m.dictionary.BuildVersions)

	fmt.Println("\nConfig:")
	for k, v := range m.dictionary.Config {
		fmt.Printf("  %s = %s\n", k, v)
	}

	fmt.Printf("\nCommands (%d):\n", len(m.dictionary.Commands))
	for name, id := range m.dictionary.Commands {
		fmt.Printf("  [%d] %s\n", id, name)
	}

	fmt.Printf("\nResponses (%d):\n", len(m.dictionary.Responses))
	for name, id := range m.dictionary.Responses {
		fmt.Printf("  [%d] %s\n", id, name)
	}

	if len(m.dictionary.Enumerations) > 0 {
		fmt.Printf("\nEnumerations (%d):\n", len(m.dictionary.Enumerations))
		for name, values := range m.dictionary.Enumerations {
			fmt.Printf("  %s: %d values\n", name, len(values))
		}
	}

	fmt.Println("======================")
}

// SendCommand looks a command up by its dictionary name and sends it.
func (m *MCU) SendCommand(name string, args func(output protocol.OutputBuffer)) error {
	if !m.connected {
		return fmt.Errorf("not connected")
	}
	if m.dictionary == nil {
		return fmt.Errorf("dictionary not loaded")
	}

	cmdID, ok := m.dictionary.Commands[name]
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}

	return m.transport.SendCommand(uint16(cmdID), args)
}

// ReceiveResponse exposes the transport's synchronous response path.
func (m *MCU) ReceiveResponse(timeout time.Duration) (*protocol.Message, error) {
	if !m.connected {
		return nil, fmt.Errorf("not connected")
	}
	return m.transport.ReceiveResponse(timeout)
}

func (m *MCU) IsConnected() bool {
	return m.connected
}
