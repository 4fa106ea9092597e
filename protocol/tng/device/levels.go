package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/telelumen/golum/common"
)

// Channel counts per dialect.  Full-featured luminaires drive 24 channels;
// legacy Light Replicators drive 32.
const (
	FullChannelCount   = 24
	LegacyChannelCount = 32

	// NamedChannelCount is the size of the named emitter vector used by
	// most lighting applications, a contiguous window of the 24-channel
	// space
	NamedChannelCount = 13

	namedOffset = 4
)

// Legacy PWM/AM drive encoding parameters.  Each channel is driven by a
// 16-bit PWM value scaled by a 6-bit amplitude with a hardware floor of 4.
const (
	legacyAMMax  = 1<<6 - 1
	legacyAMMin  = 4
	legacyPWMMax = 1<<16 - 1
)

// NamedChannels lists the emitter names of the 13-channel vector, in order.
var NamedChannels = []string{
	`RB1`, `RB2`, `B1`, `B2`, `C`, `G1`, `G2`, `L`, `PC-A`, `A`, `OR`, `R1`, `R2`,
}

// FullChannels lists the emitter names of the full 24-channel space, in
// order.  The named vector occupies indices 4 through 16.
var FullChannels = []string{
	`UV1`, `UV2`, `V1`, `V2`,
	`RB1`, `RB2`, `B1`, `B2`, `C`, `G1`, `G2`, `L`, `PC-A`, `A`, `OR`, `R1`, `R2`,
	`DR1`, `DR2`, `FR1`, `FR2`, `FR3`, `IR1`, `IR2`,
}

// ExpandNamed maps a named emitter vector of up to 13 values onto the full
// 24-channel space, zero-filling the ultraviolet and infrared channels
// outside the named window.  Short inputs zero-fill the remainder of the
// window; excess values are ignored.
func ExpandNamed(named []float64) []float64 {
	full := make([]float64, FullChannelCount)
	for i, level := range named {
		if i >= NamedChannelCount {
			break
		}
		full[namedOffset+i] = level
	}
	return full
}

// NumChannels returns the channel count of the device's dialect
func (l *Luminaire) NumChannels() int {
	if l.capability() == common.Legacy {
		return LegacyChannelCount
	}
	return FullChannelCount
}

// DriveLevels reads the normalized [0,1] intensity of every channel
func (l *Luminaire) DriveLevels() ([]float64, error) {
	body, err := l.query(`PS?`)
	if err != nil {
		return nil, err
	}
	words := strings.Split(strings.TrimSpace(body), `,`)

	if l.capability() == common.Legacy {
		return decodeLegacyLevels(words)
	}

	levels := make([]float64, 0, len(words))
	for _, word := range words {
		value, err := strconv.ParseUint(strings.TrimSpace(word), 16, 16)
		if err != nil {
			return nil, fmt.Errorf(`parsing drive level %q: %w`, word, err)
		}
		levels = append(levels, float64(value)/65535.0)
	}
	return levels, nil
}

// decodeLegacyLevels folds PWM/AM word pairs back into normalized
// intensities.  The divisor is pwm_max * am_max.
func decodeLegacyLevels(words []string) ([]float64, error) {
	if len(words)%2 != 0 {
		return nil, fmt.Errorf(`legacy drive level reply carries %d words, expected pairs`, len(words))
	}
	levels := make([]float64, 0, len(words)/2)
	for i := 0; i < len(words); i += 2 {
		pwm, err := strconv.ParseUint(strings.TrimSpace(words[i]), 16, 32)
		if err != nil {
			return nil, fmt.Errorf(`parsing PWM word %q: %w`, words[i], err)
		}
		am, err := strconv.ParseUint(strings.TrimSpace(words[i+1]), 16, 32)
		if err != nil {
			return nil, fmt.Errorf(`parsing AM word %q: %w`, words[i+1], err)
		}
		levels = append(levels, float64(pwm*am)/float64(legacyPWMMax*legacyAMMax))
	}
	return levels, nil
}

// SetDriveLevels writes the normalized intensity of every channel in one
// exchange.  Absolute level writes are idempotent and retried on transport
// faults.
func (l *Luminaire) SetDriveLevels(levels []float64) error {
	var command strings.Builder
	if l.capability() == common.Legacy {
		command.WriteString(`PA`)
		for i, level := range levels {
			pwm, am, err := encodePWMAM(level)
			if err != nil {
				return fmt.Errorf(`channel %d: %w`, i, err)
			}
			fmt.Fprintf(&command, `%04X%02X`, pwm, am)
		}
	} else {
		command.WriteString(`PS`)
		for i, level := range levels {
			value, err := encodeLevel(level)
			if err != nil {
				return fmt.Errorf(`channel %d: %w`, i, err)
			}
			fmt.Fprintf(&command, `%04X`, value)
		}
	}

	if _, _, err := l.do(command.String(), true); err != nil {
		return err
	}
	l.publish(common.EventUpdateLevels{Levels: append([]float64(nil), levels...)})
	return nil
}

// SetDriveLevel writes one channel's normalized intensity, leaving the
// others untouched
func (l *Luminaire) SetDriveLevel(channel int, level float64) error {
	if channel < 0 || channel >= l.NumChannels() {
		return fmt.Errorf(`channel %d out of range`, channel)
	}

	var command string
	if l.capability() == common.Legacy {
		pwm, am, err := encodePWMAM(level)
		if err != nil {
			return fmt.Errorf(`channel %d: %w`, channel, err)
		}
		command = fmt.Sprintf(`PC%02d%04X%02X`, channel, pwm, am)
	} else {
		value, err := encodeLevel(level)
		if err != nil {
			return fmt.Errorf(`channel %d: %w`, channel, err)
		}
		command = fmt.Sprintf(`P%02d%04X`, channel, value)
	}

	_, _, err := l.do(command, true)
	return err
}

// encodeLevel converts a normalized intensity to the 16-bit wire value
func encodeLevel(level float64) (uint16, error) {
	if level < 0 || level > 1 {
		return 0, fmt.Errorf(`drive level %v outside [0,1]`, level)
	}
	return uint16(level * 65535), nil
}

// encodePWMAM converts a normalized intensity to the legacy PWM/AM pair.
// The amplitude tracks the intensity, clamped to its hardware floor, and
// the PWM value compensates for the clamping so pwm*am stays proportional
// to the requested intensity.
func encodePWMAM(level float64) (uint16, uint8, error) {
	if level < 0 || level > 1 {
		return 0, 0, fmt.Errorf(`drive level %v outside [0,1]`, level)
	}
	fam := legacyAMMax * level
	am := int(math.Round(fam))
	if am < legacyAMMin {
		am = legacyAMMin
	}
	if am > legacyAMMax {
		am = legacyAMMax
	}
	pwm := int(fam * legacyPWMMax / float64(am))
	if pwm > legacyPWMMax {
		pwm = legacyPWMMax
	}
	return uint16(pwm), uint8(am), nil
}
