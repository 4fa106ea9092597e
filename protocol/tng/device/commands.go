package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/telelumen/golum/common"
)

// Temperature reads the board temperature.  Legacy devices have no
// temperature sensor query.
func (l *Luminaire) Temperature() (float64, error) {
	if l.capability() == common.Legacy {
		return 0, fmt.Errorf(`temperature query: %w`, common.ErrUnsupported)
	}
	body, err := l.query(`TEMPC`)
	if err != nil {
		return 0, err
	}
	// Reply shape is "Temp(C): 41.3"
	_, value, found := strings.Cut(body, `Temp(C):`)
	if !found {
		return 0, fmt.Errorf(`unrecognized temperature reply %q`, body)
	}
	temp, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf(`parsing temperature reply %q: %w`, body, err)
	}
	return temp, nil
}

// Uptime reads the time since boot as reported by the firmware.  Legacy
// devices do not track uptime.
func (l *Luminaire) Uptime() (string, error) {
	if l.capability() == common.Legacy {
		return ``, fmt.Errorf(`uptime query: %w`, common.ErrUnsupported)
	}
	body, err := l.query(`UPTIME`)
	if err != nil {
		return ``, err
	}
	return strings.TrimSpace(body), nil
}

// Chipset reads the firmware's controller identification string.  Legacy
// devices do not implement the query.
func (l *Luminaire) Chipset() (string, error) {
	if l.capability() == common.Legacy {
		return ``, fmt.Errorf(`chipset query: %w`, common.ErrUnsupported)
	}
	body, err := l.query(`IYAM`)
	if err != nil {
		return ``, err
	}
	return strings.TrimSpace(body), nil
}

// ChannelMap reads the device's channel wiring map.  The two dialects use
// different commands but the same reply shape.
func (l *Luminaire) ChannelMap() (string, error) {
	command := `MAP-GET`
	if l.capability() == common.Legacy {
		command = `MR`
	}
	body, err := l.query(command)
	if err != nil {
		return ``, err
	}
	body = strings.TrimSpace(strings.ReplaceAll(body, "\n", ``))
	if _, after, found := strings.Cut(body, `Channel map:`); found {
		body = strings.TrimSpace(after)
	}
	return body, nil
}

// Directory lists the files in onboard storage.  Full-featured devices
// frame the list with a header line and a two-line usage footer; legacy
// devices mark each name with a backquoted size suffix.
func (l *Luminaire) Directory() ([]string, error) {
	body, err := l.query(`DIR`)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(body, "\n")

	if l.capability() == common.Legacy {
		var files []string
		for _, line := range lines {
			if idx := strings.Index(line, "`"); idx > 0 {
				files = append(files, line[:idx])
			}
		}
		return files, nil
	}

	if len(lines) < 3 {
		return nil, nil
	}
	files := make([]string, 0, len(lines)-3)
	for _, line := range lines[1 : len(lines)-2] {
		if line = strings.TrimSpace(line); line != `` {
			files = append(files, line)
		}
	}
	return files, nil
}

// UsedBlocks reports the number of storage blocks in use, taken from the
// usage footer of the directory listing
func (l *Luminaire) UsedBlocks() (int, error) {
	body, err := l.query(`DIR`)
	if err != nil {
		return 0, err
	}
	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	if len(lines) == 0 {
		return 0, fmt.Errorf(`empty directory reply`)
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) == 0 {
		return 0, fmt.Errorf(`unrecognized directory footer %q`, lines[len(lines)-1])
	}
	used, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf(`parsing directory footer %q: %w`, lines[len(lines)-1], err)
	}
	return used, nil
}

// FileLRC returns the device-computed checksum for a stored file, used for
// the mandatory integrity check before firmware upgrades.  Legacy devices
// cannot compute checksums.
func (l *Luminaire) FileLRC(filename string) (uint32, error) {
	if l.capability() == common.Legacy {
		return 0, fmt.Errorf(`file checksum query: %w`, common.ErrUnsupported)
	}
	body, err := l.query(`LRC ` + filename)
	if err != nil {
		return 0, err
	}
	body = strings.ReplaceAll(body, "\n", ``)
	_, value, found := strings.Cut(body, `LRC:`)
	if !found {
		return 0, fmt.Errorf(`unrecognized checksum reply %q`, body)
	}
	lrc, err := strconv.ParseUint(strings.TrimSpace(value), 16, 32)
	if err != nil {
		return 0, fmt.Errorf(`parsing checksum reply %q: %w`, body, err)
	}
	return uint32(lrc), nil
}

// Dark turns all channels off
func (l *Luminaire) Dark() error {
	command := `DARK`
	if l.capability() == common.Legacy {
		command = `B`
	}
	_, _, err := l.do(command, true)
	if err == nil {
		l.publish(common.EventUpdateLevels{Levels: nil})
	}
	return err
}

// Reset reboots the device.  The firmware drops the socket without replying,
// so nothing is read back and the session is released immediately.
func (l *Luminaire) Reset() error {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()
	transport := l.transportRef()
	if transport == nil {
		return common.ErrNotConnected
	}
	err := transport.SendNoWait(`RESET`)
	l.Disconnect()
	return err
}

// Play starts script playback.  With paused set, full-featured devices load
// the script and wait for Resume; legacy devices cannot defer the start.
func (l *Luminaire) Play(filename string, paused bool) error {
	var command string
	switch {
	case l.capability() == common.Legacy:
		if paused {
			return fmt.Errorf(`deferred playback: %w`, common.ErrUnsupported)
		}
		command = `SETPAT=` + filename
	case filename == ``:
		command = `PLAY`
	case paused:
		command = `PLAYPAUSED ` + filename
	default:
		command = `PLAY ` + filename
	}
	_, _, err := l.do(command, false)
	return err
}

// Pause suspends script playback
func (l *Luminaire) Pause() error {
	command := `PAUSE`
	if l.capability() == common.Legacy {
		command = `Q5`
	}
	_, _, err := l.do(command, false)
	return err
}

// Resume continues paused playback
func (l *Luminaire) Resume() error {
	command := `RESUME`
	if l.capability() == common.Legacy {
		command = `Q2`
	}
	_, _, err := l.do(command, false)
	return err
}

// Stop ends script playback.  Legacy devices keep the last frame lit after
// their stop command, so the channels are darkened as well.
func (l *Luminaire) Stop() error {
	if l.capability() == common.Legacy {
		if _, _, err := l.do(`Q8`, false); err != nil {
			return err
		}
		return l.Dark()
	}
	_, _, err := l.do(`STOP`, false)
	return err
}
