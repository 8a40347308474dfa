// Package gpio drives the clock's sync indicator LED with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Indicator is a single on/off output line.
type Indicator interface {
	// Set drives the line: true = lit.
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO chip on Raspberry Pi boards.
const DefaultChip = "gpiochip0"

// DefaultPinLED is the BCM pin conventionally wired to the sync LED.
const DefaultPinLED = 17

// Nop is an Indicator that does nothing, used when no LED is configured.
type Nop struct{}

// Set does nothing.
func (Nop) Set(bool) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
