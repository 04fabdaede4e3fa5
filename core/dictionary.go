package core

import (
	"bytes"
	"sync"

	"gomcu/tinycompress"
)

// Constant is a firmware constant exposed to the host.
type Constant struct {
	Name  string
	Value interface{}
}

// Enumeration is a named set of values, like pin names.
type Enumeration struct {
	Name   string
	Values []string
}

// Dictionary manages the data dictionary sent to the Klipper host. The
// dictionary describes every command, response, constant and enumeration
// this firmware understands; the host downloads it in chunks during
// identify.
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]*Constant
	enumerations  map[string]*Enumeration
	commandReg    *CommandRegistry
	version       string
	buildVersions string
	cachedDict    []byte
}

var globalDictionary = NewDictionary(globalRegistry)

func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]*Constant),
		enumerations:  make(map[string]*Enumeration),
		commandReg:    cmdReg,
		version:       "gomcu-0.1.0",
		buildVersions: "go-tinygo",
	}
}

// RegisterConstant registers a constant in the global dictionary.
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration registers an enumeration in the global dictionary.
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = &Constant{Name: name, Value: value}
}

func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Copy the slice: TinyGo's GC may reclaim the caller's backing array
	// after its function returns.
	valuesCopy := make([]string, len(values))
	copy(valuesCopy, values)

	d.enumerations[name] = &Enumeration{Name: name, Values: valuesCopy}
}

func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
}

func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
}

// BuildDictionary builds and caches the compressed dictionary. Call once
// after all commands and constants are registered.
func (d *Dictionary) BuildDictionary() {
	// Fetch the registry data before taking the dictionary lock so the
	// two locks are never held nested in both orders.
	commands, responses := d.commandReg.GetCommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()

	jsonData := d.buildJSONLockedWithData(commands, responses)

	var buf bytes.Buffer
	w := tinycompress.NewWriter(&buf)
	if _, err := w.Write(jsonData); err != nil {
		d.cachedDict = jsonData
		return
	}
	if err := w.Close(); err != nil {
		d.cachedDict = jsonData
		return
	}

	compressed := buf.Bytes()
	if len(compressed) == 0 {
		d.cachedDict = jsonData
		return
	}
	d.cachedDict = make([]byte, len(compressed))
	copy(d.cachedDict, compressed)
}

// Generate returns the complete dictionary, compressed if BuildDictionary
// has run.
func (d *Dictionary) Generate() []byte {
	if d.cachedDict != nil {
		return d.cachedDict
	}
	return d.generateJSON()
}

func (d *Dictionary) generateJSON() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	commands, responses := d.commandReg.GetCommandsAndResponses()
	return d.buildJSONLockedWithData(commands, responses)
}

// sortStrings is an in-place insertion sort. The sort package pulls in
// reflection that TinyGo pays for in flash.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// buildJSONLockedWithData renders the dictionary in Klipper's data
// dictionary format. Caller must hold the dictionary lock.
func (d *Dictionary) buildJSONLockedWithData(commands map[string]int, responses map[string]int) []byte {
	result := make([]byte, 0, 1024)

	result = append(result, []byte(`{"version":"`)...)
	result = append(result, []byte(d.version)...)
	result = append(result, []byte(`","build_versions":"`)...)
	result = append(result, []byte(d.buildVersions)...)
	result = append(result, []byte(`","config":{`)...)

	constNames := make([]string, 0, len(d.constants))
	for name := range d.constants {
		constNames = append(constNames, name)
	}
	sortStrings(constNames)

	first := true
	for _, name := range constNames {
		c := d.constants[name]
		if !first {
			result = append(result, ',')
		}
		result = append(result, '"')
		result = append(result, []byte(name)...)
		result = append(result, []byte(`":"`)...)
		result = append(result, []byte(valueToString(c.Value))...)
		result = append(result, '"')
		first = false
	}
	result = append(result, []byte(`},"commands":{`)...)
	result = appendIDMap(result, commands)
	result = append(result, []byte(`},"responses":{`)...)
	result = appendIDMap(result, responses)
	result = append(result, '}')

	if len(d.enumerations) > 0 {
		result = append(result, []byte(`,"enumerations":{`)...)

		enumNames := make([]string, 0, len(d.enumerations))
		for name := range d.enumerations {
			enumNames = append(enumNames, name)
		}
		sortStrings(enumNames)

		firstEnum := true
		for _, name := range enumNames {
			enum := d.enumerations[name]
			if !firstEnum {
				result = append(result, ',')
			}
			result = append(result, '"')
			result = append(result, []byte(name)...)
			result = append(result, []byte(`":{`)...)

			// Empty values are gaps in the numbering and stay unnamed.
			firstValue := true
			for i, value := range enum.Values {
				if value == "" {
					continue
				}
				if !firstValue {
					result = append(result, ',')
				}
				result = append(result, '"')
				result = append(result, []byte(value)...)
				result = append(result, []byte(`":`)...)
				result = append(result, []byte(itoa(i))...)
				firstValue = false
			}
			result = append(result, '}')
			firstEnum = false
		}
		result = append(result, '}')
	}

	result = append(result, '}')
	return result
}

// appendIDMap renders a format-string-to-ID map sorted by ID, which is
// the order the host expects.
func appendIDMap(result []byte, m map[string]int) []byte {
	ids := make([]int, 0, len(m))
	for _, id := range m {
		ids = append(ids, id)
	}
	sortInts(ids)

	first := true
	for _, id := range ids {
		for format, fid := range m {
			if fid != id {
				continue
			}
			if !first {
				result = append(result, ',')
			}
			result = append(result, '"')
			result = append(result, []byte(format)...)
			result = append(result, []byte(`":`)...)
			result = append(result, []byte(itoa(fid))...)
			first = false
			break
		}
	}
	return result
}

// GetChunk returns a chunk of the dictionary starting at offset. The host
// pulls the dictionary with repeated identify commands.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if len(data) == 0 || offset >= uint32(len(data)) {
		return []byte{}
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}

	// Return a copy: a slice into the cached dictionary can move under
	// TinyGo's GC while the transport is still draining it.
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// GetGlobalDictionary returns the global dictionary instance.
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}
