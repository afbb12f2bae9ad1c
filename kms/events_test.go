package kms

import (
	"encoding/binary"
	"testing"
	"time"
)

func putVblankEvent(buf []byte, typ uint32, userData uint64, sec, usec, seq, crtc uint32) {
	binary.NativeEndian.PutUint32(buf[0:4], typ)
	binary.NativeEndian.PutUint32(buf[4:8], uint32(eventHeaderLen+vblankPayloadLen))
	binary.NativeEndian.PutUint64(buf[8:16], userData)
	binary.NativeEndian.PutUint32(buf[16:20], sec)
	binary.NativeEndian.PutUint32(buf[20:24], usec)
	binary.NativeEndian.PutUint32(buf[24:28], seq)
	binary.NativeEndian.PutUint32(buf[28:32], crtc)
}

func TestParseEvents_FlipComplete(t *testing.T) {
	buf := make([]byte, eventHeaderLen+vblankPayloadLen)
	putVblankEvent(buf, eventFlipComplete, 42, 100, 250, 7, 33)

	var got []FlipEvent
	if err := parseEvents(buf, func(ev FlipEvent) { got = append(got, ev) }); err != nil {
		t.Fatalf("parseEvents failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d flip events, want 1", len(got))
	}
	ev := got[0]
	if ev.UserData != 42 || ev.Sequence != 7 || ev.CrtcID != 33 {
		t.Errorf("unexpected event %+v", ev)
	}
	want := time.Unix(100, 250*1000)
	if !ev.When.Equal(want) {
		t.Errorf("timestamp: got %v, want %v", ev.When, want)
	}
}

func TestParseEvents_VBlankIsNotAFlip(t *testing.T) {
	buf := make([]byte, eventHeaderLen+vblankPayloadLen)
	putVblankEvent(buf, eventVBlank, 1, 0, 0, 1, 1)

	calls := 0
	if err := parseEvents(buf, func(FlipEvent) { calls++ }); err != nil {
		t.Fatalf("parseEvents failed: %v", err)
	}
	if calls != 0 {
		t.Errorf("vblank event invoked the flip callback %d times", calls)
	}
}

func TestParseEvents_SkipsUnknownTypes(t *testing.T) {
	// Unknown event, then a flip completion.
	unknownLen := eventHeaderLen + 8
	buf := make([]byte, unknownLen+eventHeaderLen+vblankPayloadLen)
	binary.NativeEndian.PutUint32(buf[0:4], 0x7f)
	binary.NativeEndian.PutUint32(buf[4:8], uint32(unknownLen))
	putVblankEvent(buf[unknownLen:], eventFlipComplete, 9, 1, 0, 2, 3)

	calls := 0
	if err := parseEvents(buf, func(ev FlipEvent) {
		calls++
		if ev.UserData != 9 {
			t.Errorf("wrong event surfaced: %+v", ev)
		}
	}); err != nil {
		t.Fatalf("parseEvents failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("got %d flip callbacks, want 1", calls)
	}
}

func TestParseEvents_TruncatedBuffer(t *testing.T) {
	buf := make([]byte, eventHeaderLen)
	binary.NativeEndian.PutUint32(buf[0:4], eventFlipComplete)
	binary.NativeEndian.PutUint32(buf[4:8], uint32(eventHeaderLen+vblankPayloadLen))

	if err := parseEvents(buf, nil); err == nil {
		t.Error("expected an error for an event longer than the buffer")
	}
}
