// habtool sends a single LED command to the device over serial, without the
// camera or the model. Useful for checking the wiring and the firmware.
//
// Usage:
//
//	habtool -cmd 1                 # turn the LED on via the auto-detected port
//	habtool -cmd 0 -port COM3      # explicit port
//	habtool -cmd 1 -monitor        # keep echoing device output afterwards
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/habproj/go-hab/internal/config"
	"github.com/habproj/go-hab/internal/log"
	"github.com/habproj/go-hab/pkg/link"
)

func main() {
	command := flag.Int("cmd", -1, "Command to send (1: LED on, 0: LED off)")
	port := flag.String("port", "", "Serial port (e.g. /dev/ttyUSB0, COM3); empty auto-detects")
	baud := flag.Int("baud", config.DefaultBaudRate, "Baud rate for serial communication")
	monitor := flag.Bool("monitor", false, "Keep reading device output until interrupted")
	list := flag.Bool("list", false, "List candidate serial ports and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		log.Init("debug")
	} else {
		log.Init("warn")
	}

	if *list {
		listPorts()
		return
	}

	var cmd link.Command
	switch *command {
	case 0:
		cmd = link.CommandDeactivate
	case 1:
		cmd = link.CommandActivate
	default:
		fmt.Fprintln(os.Stderr, "habtool: -cmd must be 0 or 1")
		flag.Usage()
		os.Exit(2)
	}

	l := link.New(link.Config{
		Port:          config.Env("HAB_PORT", *port),
		BaudRate:      *baud,
		RequireDevice: true,
	})
	defer l.Disconnect()

	fmt.Println("Connecting...")
	if _, err := l.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "habtool: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Device verified on %s\n", l.PortPath())

	if err := l.Send(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "habtool: send failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sent %s (%q)\n", cmd, cmd.Token())

	if *monitor {
		runMonitor(l)
	}
}

// runMonitor echoes device lines and forwards typed 0/1 commands until
// interrupted or "exit" is entered.
func runMonitor(l *link.Link) {
	fmt.Println("Monitor mode. Type 0 or 1 to send, 'exit' to quit, Ctrl+C to abort.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	input := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- strings.TrimSpace(scanner.Text())
		}
		close(input)
	}()

	for {
		// Drain anything the device said since the last tick.
		for {
			line, err := l.ReadLine(200 * time.Millisecond)
			if err != nil {
				break
			}
			fmt.Printf("device: %s\n", line)
		}

		select {
		case <-sigChan:
			fmt.Println("\nInterrupted.")
			return
		case text, ok := <-input:
			if !ok || text == "exit" || text == "quit" {
				return
			}
			switch text {
			case "0":
				sendOrDie(l, link.CommandDeactivate)
			case "1":
				sendOrDie(l, link.CommandActivate)
			case "":
			default:
				fmt.Println("Unknown command. Use 0, 1 or exit.")
			}
		default:
		}
	}
}

func sendOrDie(l *link.Link, cmd link.Command) {
	if err := l.Send(cmd); err != nil {
		if errors.Is(err, link.ErrLinkLost) {
			fmt.Fprintf(os.Stderr, "habtool: device lost: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "habtool: %v\n", err)
		return
	}
	fmt.Printf("Sent %s\n", cmd)
}

func listPorts() {
	candidates, err := link.Discover()
	if err != nil {
		fmt.Fprintf(os.Stderr, "habtool: %v\n", err)
		os.Exit(1)
	}
	if len(candidates) == 0 {
		fmt.Println("No candidate serial ports found.")
		return
	}
	for i, c := range candidates {
		desc := c.Description
		if desc == "" {
			desc = "(no description)"
		}
		id := ""
		if c.VID != "" {
			id = fmt.Sprintf(" [%s:%s]", c.VID, c.PID)
		}
		fmt.Printf("%d. %s  %s%s\n", i+1, c.Path, desc, id)
	}
}
