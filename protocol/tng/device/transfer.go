package device

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/telelumen/golum/common"
	"github.com/telelumen/golum/protocol/tng/shared"
)

// Upload transfers a local file into the device's onboard storage under
// remoteName.  The file is cut into fixed blocks, the final block
// zero-padded, and each block is sent as a hex-encoded write carrying its
// own checksum on full-featured devices.  A block rejected for a bad
// checksum is retransmitted up to the per-block budget; legacy devices
// acknowledge without verifying, so their transfer is best effort.
//
// With idle set the device is left idle after the close instead of
// executing the uploaded script.  On failure the remote partial file is
// invalid and should be deleted by the caller.
func (l *Luminaire) Upload(ctx context.Context, localPath, remoteName string, idle bool) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf(`reading %s: %w`, localPath, err)
	}
	if len(data) == 0 {
		return &common.TransferError{Filename: remoteName, Block: -1, Reason: `local file is empty`}
	}

	verified := l.capability() == common.FullFeatured
	blocks := (len(data) + common.BlockSize - 1) / common.BlockSize

	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	if _, status, err := l.doLocked(`CREATE `+remoteName, false); err != nil {
		var cmdErr *common.CommandError
		if errors.As(err, &cmdErr) {
			return &common.TransferError{Filename: remoteName, Block: -1, Reason: `create rejected`, Status: int(status)}
		}
		return err
	}

	for block := 0; block < blocks; block++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk := make([]byte, common.BlockSize)
		copy(chunk, data[block*common.BlockSize:])

		if err := l.sendBlock(remoteName, block, chunk, verified); err != nil {
			return err
		}
		l.publish(common.EventTransferProgress{Filename: remoteName, Block: block + 1, Blocks: blocks})
	}

	// The close carries the true byte length so the device can trim the
	// final block's padding.
	verb := `CLOSE`
	if idle {
		verb = `CLOSEPAUSED`
	}
	if _, status, err := l.doLocked(fmt.Sprintf(`%s,%08x`, verb, len(data)), true); err != nil {
		var cmdErr *common.CommandError
		if errors.As(err, &cmdErr) {
			return &common.TransferError{Filename: remoteName, Block: -1, Reason: `close rejected`, Status: int(status)}
		}
		return err
	}

	common.Log.Infof(`uploaded %s to %v as %q, %d blocks`, localPath, l.Serial(), remoteName, blocks)
	return nil
}

// sendBlock writes one padded block, retrying on checksum rejection or
// transport fault until the per-block budget is spent
func (l *Luminaire) sendBlock(remoteName string, block int, chunk []byte, verified bool) error {
	var command string
	if verified {
		command = fmt.Sprintf(`WRITE %08X:%s`, shared.ComputeLRC(chunk), strings.ToUpper(hex.EncodeToString(chunk)))
	} else {
		command = `WRITE ` + strings.ToUpper(hex.EncodeToString(chunk))
	}

	budget := l.config.BlockRetries
	if budget < 1 {
		budget = 1
	}

	var lastStatus shared.Status
	for attempt := 0; attempt < budget; attempt++ {
		_, status, err := l.doLocked(command, true)
		lastStatus = status
		switch {
		case err == nil:
			return nil
		case status == shared.StatusInvalidLRC:
			common.Log.Debugf(`block %d of %q rejected for bad checksum, resending`, block, remoteName)
			continue
		case status == shared.StatusNoResponse:
			// doLocked already spent the transport retry budget and
			// tore the session down
			return err
		default:
			return &common.TransferError{Filename: remoteName, Block: block, Reason: `write rejected`, Status: int(status)}
		}
	}
	return &common.TransferError{Filename: remoteName, Block: block, Reason: `checksum retry budget exhausted`, Status: int(lastStatus)}
}

// Download transfers a remote file to a local path.  Full-featured devices
// stream checksummed blocks addressed by offset; a block failing its
// checksum is re-read from the same offset.  Legacy devices stream
// unverified sequential reads.  Nothing is written locally until the whole
// file has arrived intact.
func (l *Luminaire) Download(ctx context.Context, remoteName, localPath string) error {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	if _, status, err := l.doLocked(`OPEN `+remoteName, true); err != nil {
		if status == shared.StatusFileNotFound {
			return &common.TransferError{Filename: remoteName, Block: -1, Reason: `no such file`, Status: int(status)}
		}
		var cmdErr *common.CommandError
		if errors.As(err, &cmdErr) {
			return &common.TransferError{Filename: remoteName, Block: -1, Reason: `open rejected`, Status: int(status)}
		}
		return err
	}

	var data []byte
	var err error
	if l.capability() == common.Legacy {
		data, err = l.receiveSequential(ctx, remoteName)
	} else {
		data, err = l.receiveVerified(ctx, remoteName)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(localPath, data, 0644); err != nil {
		return fmt.Errorf(`writing %s: %w`, localPath, err)
	}
	common.Log.Infof(`downloaded %q from %v to %s, %d bytes`, remoteName, l.Serial(), localPath, len(data))
	return nil
}

// receiveVerified reads checksummed blocks by offset until the device
// signals end of file.  Each reply interleaves hex data words with one
// "=<name>:<LRC>" token; a checksum mismatch re-reads the same offset.
func (l *Luminaire) receiveVerified(ctx context.Context, remoteName string) ([]byte, error) {
	var data []byte
	offset := 0
	block := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		budget := l.config.BlockRetries
		if budget < 1 {
			budget = 1
		}

		var chunk []byte
		var done bool
		var lastErr error
		ok := false
		for attempt := 0; attempt < budget && !ok; attempt++ {
			body, status, err := l.doLocked(fmt.Sprintf(`READAT %d`, offset), true)
			switch {
			case status == shared.StatusEndOfFile:
				done, ok = true, true
			case err != nil:
				var cmdErr *common.CommandError
				if !errors.As(err, &cmdErr) {
					return nil, err
				}
				return nil, &common.TransferError{Filename: remoteName, Block: block, Reason: `read rejected`, Status: int(status)}
			default:
				chunk, err = decodeVerifiedBlock(body)
				if err != nil {
					common.Log.Debugf(`block %d of %q failed verification, re-reading: %v`, block, remoteName, err)
					lastErr = err
					continue
				}
				ok = true
			}
		}
		if !ok {
			return nil, &common.TransferError{Filename: remoteName, Block: block, Reason: fmt.Sprintf(`verification retry budget exhausted: %v`, lastErr)}
		}
		if done {
			return data, nil
		}

		data = append(data, chunk...)
		offset += common.BlockSize
		block++
		l.publish(common.EventTransferProgress{Filename: remoteName, Block: block, Blocks: 0})
	}
}

// decodeVerifiedBlock parses one READAT reply body and verifies its
// checksum token against the decoded data
func decodeVerifiedBlock(body string) ([]byte, error) {
	var data []byte
	var checksum string
	for _, word := range strings.Fields(body) {
		if strings.HasPrefix(word, `=`) {
			if _, after, found := strings.Cut(word, `:`); found {
				checksum = after
			}
			continue
		}
		decoded, err := hex.DecodeString(word)
		if err != nil {
			return nil, fmt.Errorf(`bad data word %q: %w`, word, err)
		}
		data = append(data, decoded...)
	}
	if checksum == `` {
		return nil, fmt.Errorf(`reply carries no checksum token`)
	}
	want, err := strconv.ParseUint(checksum, 16, 32)
	if err != nil {
		return nil, fmt.Errorf(`bad checksum token %q: %w`, checksum, err)
	}
	if got := shared.ComputeLRC(data); got != uint32(want) {
		return nil, fmt.Errorf(`checksum mismatch: computed %08X, device sent %08X`, got, uint32(want))
	}
	return data, nil
}

// receiveSequential reads unverified blocks in device order until a
// non-zero status ends the stream.  Each reply line is "<addr>: <hex...>"
// with spaced hex bytes.
func (l *Luminaire) receiveSequential(ctx context.Context, remoteName string) ([]byte, error) {
	var data []byte
	block := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, _, err := l.doLocked(`READ`, true)
		if err != nil {
			var cmdErr *common.CommandError
			if errors.As(err, &cmdErr) {
				// Any non-zero status ends a legacy read stream
				return data, nil
			}
			return nil, err
		}

		for _, line := range strings.Split(body, "\n") {
			_, after, found := strings.Cut(line, `:`)
			if !found {
				continue
			}
			decoded, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(after), ` `, ``))
			if err != nil {
				return nil, &common.TransferError{Filename: remoteName, Block: block, Reason: fmt.Sprintf(`bad data line %q`, line)}
			}
			data = append(data, decoded...)
		}
		block++
		l.publish(common.EventTransferProgress{Filename: remoteName, Block: block, Blocks: 0})
	}
}
