package video

import (
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// H264 NAL unit types.
const (
	nalIDR = 5
	nalSPS = 7
)

// Assembler rebuilds Annex-B H264 access units from RTP packets.
// Output starts at the first keyframe; everything before it is discarded.
type Assembler struct {
	depacketizer codecs.H264Packet

	buf      []byte
	ts       uint32
	started  bool
	keyframe bool
	synced   bool
}

// AccessUnit is one complete coded picture.
type AccessUnit struct {
	Data      []byte
	Timestamp uint32
	Keyframe  bool
}

// Push adds a packet and returns a completed access unit, if any.
// A unit completes on the marker bit or when the RTP timestamp moves on.
// When one packet does both, the earlier unit is returned and the new one
// stays buffered until the next timestamp change.
func (a *Assembler) Push(pkt *rtp.Packet) (AccessUnit, bool) {
	var out AccessUnit
	var done bool

	if a.started && pkt.Timestamp != a.ts && len(a.buf) > 0 {
		out, done = a.flush()
	}

	nals, err := a.depacketizer.Unmarshal(pkt.Payload)
	if err != nil {
		a.reset()
		return out, done
	}
	if len(nals) > 0 {
		if !a.started {
			a.ts = pkt.Timestamp
			a.started = true
		}
		if hasKeyframe(nals) {
			a.keyframe = true
		}
		a.buf = append(a.buf, nals...)
	}

	if pkt.Marker && len(a.buf) > 0 && !done {
		return a.flush()
	}
	return out, done
}

func (a *Assembler) flush() (AccessUnit, bool) {
	au := AccessUnit{Data: a.buf, Timestamp: a.ts, Keyframe: a.keyframe}
	a.buf = nil
	a.started = false
	a.keyframe = false

	if au.Keyframe {
		a.synced = true
	}
	if !a.synced {
		return AccessUnit{}, false
	}
	return au, true
}

func (a *Assembler) reset() {
	a.buf = nil
	a.started = false
	a.keyframe = false
	a.synced = false
}

// hasKeyframe scans Annex-B data for an IDR slice or SPS.
func hasKeyframe(annexb []byte) bool {
	for i := 0; i+3 < len(annexb); i++ {
		if annexb[i] != 0 || annexb[i+1] != 0 {
			continue
		}
		var nal byte
		switch {
		case annexb[i+2] == 1:
			nal = annexb[i+3]
		case annexb[i+2] == 0 && i+4 < len(annexb) && annexb[i+3] == 1:
			nal = annexb[i+4]
		default:
			continue
		}
		switch nal & 0x1f {
		case nalIDR, nalSPS:
			return true
		}
	}
	return false
}
