// bmcuctl talks to a BMCU-C board from the host. In Klipper mode it
// runs the identify/dictionary exchange and an interactive console; in
// bambu mode it drives the board over the printer-facing bus framing.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gomcu/bambubus"
	"gomcu/host/mcu"
	"gomcu/host/serial"
)

var device = flag.String("device", "/dev/ttyUSB0", "Serial device path")

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: bmcuctl [-device path] <command>")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Klipper mode:")
	fmt.Fprintln(os.Stderr, "  info         Identify the board and print its dictionary")
	fmt.Fprintln(os.Stderr, "  console      Interactive command console")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Bambu mode (1.25M baud 8E1):")
	fmt.Fprintln(os.Stderr, "  ping         Check the board answers on the bus")
	fmt.Fprintln(os.Stderr, "  home         Park all motor channels")
	fmt.Fprintln(os.Stderr, "  gate N       Feed from spool gate N (0-3)")
	fmt.Fprintln(os.Stderr, "  status       Query spool switches and channel state")
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	var err error
	switch flag.Arg(0) {
	case "info":
		err = runInfo()
	case "console":
		err = runConsole()
	case "ping":
		err = runBambu(func(c *bambuClient) error { return c.ping() })
	case "home":
		err = runBambu(func(c *bambuClient) error { return c.home() })
	case "gate":
		if flag.NArg() < 2 {
			usage()
		}
		var gate int
		if _, err := fmt.Sscanf(flag.Arg(1), "%d", &gate); err != nil || gate < 0 || gate > 3 {
			fmt.Fprintln(os.Stderr, "gate must be 0-3")
			os.Exit(2)
		}
		err = runBambu(func(c *bambuClient) error { return c.selectGate(uint8(gate)) })
	case "status":
		err = runBambu(func(c *bambuClient) error { return c.status() })
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// ---- Klipper mode ----

func connectKlipper() (*mcu.MCU, error) {
	conn := mcu.NewMCU()
	if err := conn.Connect(*device); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := conn.RetrieveDictionary(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to retrieve dictionary: %w", err)
	}
	return conn, nil
}

func runInfo() error {
	conn, err := connectKlipper()
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.PrintDictionary()
	return nil
}

func runConsole() error {
	conn, err := connectKlipper()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Println("Connected. Type 'help' for commands, 'quit' to exit.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		switch parts[0] {
		case "quit", "exit", "q":
			return nil

		case "help", "?":
			fmt.Println("  dict          Print the dictionary summary")
			fmt.Println("  raw           Print the raw dictionary JSON")
			fmt.Println("  send NAME     Send a no-argument dictionary command")
			fmt.Println("  quit          Exit")

		case "dict":
			conn.PrintDictionary()

		case "raw":
			raw := conn.GetDictionaryRaw()
			fmt.Printf("Raw dictionary (%d bytes):\n%s\n", len(raw), raw)

		case "send":
			if len(parts) < 2 {
				fmt.Println("usage: send NAME")
				continue
			}
			if err := sendAndPrint(conn, parts[1]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		default:
			// Bare dictionary names work as a shorthand for send.
			if err := sendAndPrint(conn, parts[0]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
	}

	return scanner.Err()
}

func sendAndPrint(conn *mcu.MCU, name string) error {
	if err := conn.SendCommand(name, nil); err != nil {
		return err
	}

	resp, err := conn.ReceiveResponse(500 * time.Millisecond)
	if err != nil {
		fmt.Println("(no response)")
		return nil
	}
	fmt.Printf("response: % x\n", resp.Payload)
	return nil
}

// ---- Bambu mode ----

type bambuClient struct {
	port  serial.Port
	codec *bambubus.Codec
	rx    []byte
}

func runBambu(action func(*bambuClient) error) error {
	port, err := serial.Open(serial.BambuConfig(*device))
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	defer port.Close()

	client := &bambuClient{
		port:  port,
		codec: bambubus.NewCodec(bambubus.HostAddress, bambubus.DeviceAddress),
	}
	return action(client)
}

func (c *bambuClient) send(cmd uint8, payload []byte) error {
	frame, err := c.codec.Build(cmd, payload)
	if err != nil {
		return err
	}
	if _, err := c.port.Write(frame); err != nil {
		return err
	}
	return c.port.Flush()
}

// wait reads until a frame addressed to the host arrives or the
// deadline passes.
func (c *bambuClient) wait(timeout time.Duration) (*bambubus.Frame, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 256)

	for time.Now().Before(deadline) {
		n, err := c.port.Read(buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}

		c.rx = append(c.rx, buf[:n]...)
		frames, consumed := bambubus.ExtractFrames(c.rx)
		c.rx = c.rx[:copy(c.rx, c.rx[consumed:])]

		for i := range frames {
			if frames[i].Dst == bambubus.HostAddress {
				return &frames[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no reply within %v", timeout)
}

func (c *bambuClient) ping() error {
	if err := c.send(bambubus.CmdPing, nil); err != nil {
		return err
	}
	frame, err := c.wait(time.Second)
	if err != nil {
		return err
	}
	if frame.Command != bambubus.CmdPing|bambubus.AckMask {
		return fmt.Errorf("unexpected reply %#02x", frame.Command)
	}
	fmt.Println("Board is online.")
	return nil
}

func (c *bambuClient) home() error {
	if err := c.send(bambubus.CmdHome, nil); err != nil {
		return err
	}
	frame, err := c.wait(time.Second)
	if err != nil {
		return err
	}
	if frame.Command != bambubus.CmdHome|bambubus.AckMask {
		return fmt.Errorf("unexpected reply %#02x", frame.Command)
	}
	fmt.Println("All channels parked.")
	return nil
}

func (c *bambuClient) selectGate(gate uint8) error {
	if err := c.send(bambubus.CmdSelectGate, []byte{0x00, gate, 0x00}); err != nil {
		return err
	}
	frame, err := c.wait(time.Second)
	if err != nil {
		return err
	}
	switch frame.Command {
	case bambubus.CmdSelectGate | bambubus.AckMask:
		fmt.Printf("Gate %d selected.\n", gate)
		return nil
	case bambubus.RspError:
		return fmt.Errorf("board rejected gate %d (code %#02x)", gate, errCode(frame))
	default:
		return fmt.Errorf("unexpected reply %#02x", frame.Command)
	}
}

func (c *bambuClient) status() error {
	if err := c.send(bambubus.CmdQueryStatus, nil); err != nil {
		return err
	}
	frame, err := c.wait(time.Second)
	if err != nil {
		return err
	}
	if frame.Command != bambubus.RspStatus || len(frame.Payload) < 5 {
		return fmt.Errorf("unexpected reply %#02x", frame.Command)
	}

	doors, filament := frame.Payload[0], frame.Payload[1]
	errorCode, activeGate := frame.Payload[2], frame.Payload[3]

	for gate := 0; gate < 4; gate++ {
		mark := " "
		if uint8(gate) == activeGate {
			mark = "*"
		}
		fmt.Printf("%s gate %d: spool=%-3v filament=%v\n", mark, gate,
			doors&(1<<gate) != 0, filament&(1<<gate) != 0)
	}
	if activeGate >= 4 {
		fmt.Println("  no active gate")
	}
	if errorCode != 0 {
		fmt.Printf("  error code %#02x\n", errorCode)
	}
	return nil
}

func errCode(frame *bambubus.Frame) uint8 {
	if len(frame.Payload) > 0 {
		return frame.Payload[0]
	}
	return 0
}
