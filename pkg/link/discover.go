package link

import (
	"fmt"
	"regexp"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortCandidate is one serial port found during discovery.
type PortCandidate struct {
	Path        string // platform device path or name, e.g. /dev/ttyUSB0, COM3
	Description string // product/description string reported by the OS
	VID         string // USB vendor id, hex, empty for non-USB ports
	PID         string // USB product id, hex, empty for non-USB ports
}

// deviceKeyword is matched against port descriptions during ranking.
const deviceKeyword = "arduino"

// knownIDs are VID:PID pairs of boards running the target firmware family.
// Covers official Arduino boards plus the usual clone USB-serial bridges.
var knownIDs = []struct{ vid, pid string }{
	{"2341", ""},     // official Arduino, any product
	{"2A03", ""},     // Arduino (org fork era)
	{"1A86", "7523"}, // CH340 clones
	{"1A86", "55D4"}, // CH9102 clones
	{"0403", "6001"}, // FTDI clones
	{"0403", "6015"}, // FTDI clones
}

// pathPatterns match common USB-serial device names per platform.
var pathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^/dev/ttyACM\d+$`),
	regexp.MustCompile(`^/dev/ttyUSB\d+$`),
	regexp.MustCompile(`^/dev/(cu|tty)\.usbmodem.+$`),
	regexp.MustCompile(`^/dev/(cu|tty)\.usbserial.*$`),
	regexp.MustCompile(`^/dev/(cu|tty)\.wchusbserial.+$`),
	regexp.MustCompile(`^/dev/(cu|tty)\.SLAB_USBtoUART$`),
	regexp.MustCompile(`^COM\d+$`),
}

// Discover enumerates the host's serial ports and returns them ranked by how
// likely each one is the target device, most likely first. An empty result
// means no ports were found; that is not an error by itself.
func Discover() ([]PortCandidate, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	candidates := make([]PortCandidate, 0, len(details))
	for _, d := range details {
		candidates = append(candidates, PortCandidate{
			Path:        d.Name,
			Description: d.Product,
			VID:         d.VID,
			PID:         d.PID,
		})
	}
	return Rank(candidates), nil
}

// Rank orders candidates by identification specificity, highest first:
// keyword in the description, then known VID:PID pairs, then platform naming
// patterns, then a sole available port as last resort. Ports that match
// nothing are dropped unless they are the only port on the host. Rank is
// pure; it never touches hardware.
func Rank(candidates []PortCandidate) []PortCandidate {
	var byKeyword, byID, byPattern []PortCandidate

	for _, c := range candidates {
		switch {
		case matchesKeyword(c):
			byKeyword = append(byKeyword, c)
		case matchesKnownID(c):
			byID = append(byID, c)
		case matchesPathPattern(c):
			byPattern = append(byPattern, c)
		}
	}

	ranked := make([]PortCandidate, 0, len(candidates))
	ranked = append(ranked, byKeyword...)
	ranked = append(ranked, byID...)
	ranked = append(ranked, byPattern...)

	// A single unidentified port is still worth one connect attempt.
	if len(ranked) == 0 && len(candidates) == 1 {
		ranked = append(ranked, candidates[0])
	}
	return ranked
}

func matchesKeyword(c PortCandidate) bool {
	return strings.Contains(strings.ToLower(c.Description), deviceKeyword)
}

func matchesKnownID(c PortCandidate) bool {
	for _, id := range knownIDs {
		if !strings.EqualFold(c.VID, id.vid) {
			continue
		}
		if id.pid == "" || strings.EqualFold(c.PID, id.pid) {
			return true
		}
	}
	return false
}

func matchesPathPattern(c PortCandidate) bool {
	for _, p := range pathPatterns {
		if p.MatchString(c.Path) {
			return true
		}
	}
	return false
}
