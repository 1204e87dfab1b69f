// Package update implements the Firmware Update Orchestrator: it drives
// the Firmware Reader and the Session Facade through one end-to-end
// reprogramming pass, guaranteeing teardown on every exit path the way
// pkg/network.Network.Disconnect guarantees its own stop-then-wait
// sequence in the teacher.
package update

import (
	"errors"
	"log/slog"

	"github.com/samsamfire/xcpflash/pkg/firmware"
	"github.com/samsamfire/xcpflash/pkg/port"
	"github.com/samsamfire/xcpflash/pkg/session"
)

// Options configures one Update run.
type Options struct {
	FirmwarePath string
	ProtocolID   string // registered with session.Register, e.g. "XCP_V10"
	Settings     any    // passed through to session.Protocol.Init
	Reader       firmware.Reader
}

// Update opens the firmware file named by opts.FirmwarePath, connects to
// the target over p using the protocol registered as opts.ProtocolID,
// erases and programs every segment in order, and always tears both
// down before returning. A non-nil error means the target may be left
// partially programmed; the caller's retry policy, not this function,
// decides what to do about that.
func Update(p port.Port, opts Options) error {
	logger := slog.Default().With("service", "[UPDATE]")

	reader := opts.Reader
	if reader == nil {
		return errors.New("update: no firmware reader supplied")
	}
	if err := reader.Open(opts.FirmwarePath); err != nil {
		return err
	}
	defer reader.Close()

	proto, err := session.New(opts.ProtocolID)
	if err != nil {
		return err
	}
	if err := proto.Init(p, opts.Settings); err != nil {
		return err
	}
	defer proto.Terminate()

	// Start's own CONNECT retry budget (up to 5 attempts at T6 each,
	// 5000ms total under DefaultSettings) is the connect deadline
	// spec.md §4.4 calls for; the orchestrator does not additionally
	// race it against a wall-clock timer, since the core is
	// single-threaded and Start is not reentrant-safe to race against
	// a concurrent Terminate.
	defer proto.Stop()
	if err := proto.Start(); err != nil {
		return err
	}

	segCount := reader.SegmentCount()
	logger.Info("firmware opened", "path", opts.FirmwarePath, "segments", segCount)

	for i := 0; i < segCount; i++ {
		seg, err := reader.SegmentInfo(i)
		if err != nil {
			return err
		}
		logger.Info("erasing segment", "index", i, "base", seg.BaseAddress, "length", seg.Length)
		if err := proto.ClearMemory(seg.BaseAddress, seg.Length); err != nil {
			return err
		}
	}

	for i := 0; i < segCount; i++ {
		seg, err := reader.SegmentInfo(i)
		if err != nil {
			return err
		}
		if err := reader.OpenSegment(i); err != nil {
			return err
		}
		logger.Info("programming segment", "index", i, "base", seg.BaseAddress, "length", seg.Length)
		for {
			chunk, ok, err := reader.NextChunk()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if err := proto.WriteData(chunk.Address, chunk.Data); err != nil {
				return err
			}
		}
	}

	logger.Info("firmware update complete")
	return nil
}
