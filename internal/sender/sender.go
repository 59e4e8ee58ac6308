package sender

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gopacket/pcap"
	"github.com/hostinger/garp-service/internal/announce"
	"github.com/hostinger/garp-service/internal/logger"
)

// Handle is a link-layer transmit endpoint bound to one interface.
type Handle interface {
	WritePacketData(data []byte) error
	Close()
}

type Opener interface {
	Open(ifname string) (Handle, error)
}

// PcapOpener opens transmit handles with libpcap.
type PcapOpener struct {
	Snaplen int32
}

func (o PcapOpener) Open(ifname string) (Handle, error) {
	snaplen := o.Snaplen
	if snaplen == 0 {
		snaplen = 1600
	}

	handle, err := pcap.OpenLive(ifname, snaplen, false, pcap.BlockForever)
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// SocketError is returned when a transmit handle cannot be opened or a frame
// cannot be written.
type SocketError struct {
	Interface string
	Op        string
	Err       error
}

func (e *SocketError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Interface, e.Err)
}

func (e *SocketError) Unwrap() error {
	return e.Err
}

type Stats struct {
	Cycles    uint64
	LastCycle time.Time
}

// Loop transmits every announcement's frames over its own handle, once or on
// a fixed interval.
type Loop struct {
	opener Opener
	anns   []announce.Announcement

	mu    sync.Mutex
	stats Stats
}

func New(opener Opener, anns []announce.Announcement) *Loop {
	return &Loop{opener: opener, anns: anns}
}

func (l *Loop) Announcements() []announce.Announcement {
	return l.anns
}

func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Run opens the handles and sends cycles until done. A nil interval sends a
// single cycle. Otherwise each cycle starts interval after the previous one
// started, until ctx is cancelled or a write fails. Handles are closed before
// Run returns.
func (l *Loop) Run(ctx context.Context, interval *time.Duration) error {
	handles, err := l.open()
	if err != nil {
		return err
	}
	defer closeAll(handles)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		if err := l.send(handles); err != nil {
			return err
		}
		l.record(start)

		if interval == nil {
			return nil
		}
		if err := sleepUntil(ctx, start.Add(*interval)); err != nil {
			return err
		}
	}
}

func (l *Loop) open() ([]Handle, error) {
	handles := make([]Handle, 0, len(l.anns))
	for _, a := range l.anns {
		h, err := l.opener.Open(a.Interface)
		if err != nil {
			closeAll(handles)
			return nil, &SocketError{Interface: a.Interface, Op: "open", Err: err}
		}
		logger.Debug("Opened transmit handle on %s", a.Interface)
		handles = append(handles, h)
	}
	return handles, nil
}

func (l *Loop) send(handles []Handle) error {
	for i, a := range l.anns {
		for _, frame := range a.Frames {
			if err := handles[i].WritePacketData(frame); err != nil {
				return &SocketError{Interface: a.Interface, Op: "send", Err: err}
			}
		}
	}
	return nil
}

func (l *Loop) record(start time.Time) {
	l.mu.Lock()
	l.stats.Cycles++
	l.stats.LastCycle = start
	n := l.stats.Cycles
	l.mu.Unlock()

	logger.Debug("Sent announcement cycle %d on %d interface(s)", n, len(l.anns))
}

func closeAll(handles []Handle) {
	for _, h := range handles {
		h.Close()
	}
}

func sleepUntil(ctx context.Context, deadline time.Time) error {
	d := time.Until(deadline)
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
