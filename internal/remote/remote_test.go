package remote

import (
	"os"
	"testing"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	m := Message{
		RecipientPID: 4242,
		Flags: DisplayFlags{
			Progress: true,
			Timer:    false,
			ETA:      true,
			Rate:     true,
		},
		LastWrittenWidth: 40,
		RateLimit:        1 << 20,
		BufferSize:       65536,
		Size:             1 << 30,
		Interval:         0.25,
		Width:            120,
		Height:           40,
		WidthManual:      true,
		HeightManual:     false,
		Name:             "stage-1",
		NameSet:          true,
		Format:           "%p %r",
		FormatSet:        true,
	}

	buf := marshal(m)
	if len(buf) != wireLen {
		t.Fatalf("marshal() len = %d, want %d", len(buf), wireLen)
	}

	got, err := unmarshal(buf)
	if err != nil {
		t.Fatalf("unmarshal() error = %v", err)
	}
	if got.RecipientPID != m.RecipientPID {
		t.Fatalf("RecipientPID = %d, want %d", got.RecipientPID, m.RecipientPID)
	}
	if got.Flags != m.Flags {
		t.Fatalf("Flags = %+v, want %+v", got.Flags, m.Flags)
	}
	if got.LastWrittenWidth != m.LastWrittenWidth || got.RateLimit != m.RateLimit ||
		got.BufferSize != m.BufferSize || got.Size != m.Size {
		t.Fatalf("numeric fields mismatch: got %+v, want %+v", got, m)
	}
	if got.Interval != m.Interval {
		t.Fatalf("Interval = %v, want %v", got.Interval, m.Interval)
	}
	if got.Width != m.Width || got.Height != m.Height ||
		got.WidthManual != m.WidthManual || got.HeightManual != m.HeightManual {
		t.Fatalf("dimension fields mismatch: got %+v, want %+v", got, m)
	}
	if got.Name != m.Name || got.Format != m.Format {
		t.Fatalf("Name/Format = %q/%q, want %q/%q", got.Name, got.Format, m.Name, m.Format)
	}
	if got.NameSet != m.NameSet || got.FormatSet != m.FormatSet {
		t.Fatalf("NameSet/FormatSet = %v/%v, want %v/%v", got.NameSet, got.FormatSet, m.NameSet, m.FormatSet)
	}
}

func TestMarshalUnmarshalNameFormatUnsetStaysUnset(t *testing.T) {
	m := Message{RecipientPID: 1, RateLimit: 50}
	got, err := unmarshal(marshal(m))
	if err != nil {
		t.Fatalf("unmarshal() error = %v", err)
	}
	if got.NameSet || got.FormatSet {
		t.Fatalf("NameSet/FormatSet = %v/%v, want false/false when sender left them zero", got.NameSet, got.FormatSet)
	}
	if got.Name != "" || got.Format != "" {
		t.Fatalf("Name/Format = %q/%q, want empty", got.Name, got.Format)
	}
}

func TestMarshalUnmarshalNameFormatSetToEmptyString(t *testing.T) {
	m := Message{RecipientPID: 1, Name: "", NameSet: true, Format: "", FormatSet: true}
	got, err := unmarshal(marshal(m))
	if err != nil {
		t.Fatalf("unmarshal() error = %v", err)
	}
	if !got.NameSet || !got.FormatSet {
		t.Fatalf("NameSet/FormatSet = %v/%v, want true/true for an explicit clear-to-empty", got.NameSet, got.FormatSet)
	}
	if got.Name != "" || got.Format != "" {
		t.Fatalf("Name/Format = %q/%q, want empty", got.Name, got.Format)
	}
}

func TestUnmarshalRejectsWrongLength(t *testing.T) {
	_, err := unmarshal(make([]byte, wireLen-1))
	if err == nil {
		t.Fatalf("unmarshal() with short buffer, want error")
	}
}

func TestCstringStopsAtNUL(t *testing.T) {
	b := make([]byte, 16)
	copy(b, "abc")
	b[3] = 0
	copy(b[4:], "garbage")
	if got := cstring(b); got != "abc" {
		t.Fatalf("cstring() = %q, want %q", got, "abc")
	}
}

func TestClampDim(t *testing.T) {
	cases := []struct{ in, want uint32 }{
		{0, 0},
		{1, 1},
		{999999, 999999},
		{1000000, 999999},
	}
	for _, c := range cases {
		if got := clampDim(c.in); got != c.want {
			t.Fatalf("clampDim(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestClampInterval(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.01, 0.1},
		{0.1, 0.1},
		{5, 5},
		{600, 600},
		{1000, 600},
	}
	for _, c := range cases {
		if got := clampInterval(c.in); got != c.want {
			t.Fatalf("clampInterval(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestSendRejectsUnknownPID(t *testing.T) {
	// PID 2^30 is exceedingly unlikely to exist; Send must fail fast on
	// the existence check rather than attempting to enqueue.
	err := Send(Message{RecipientPID: 1 << 30})
	if err == nil {
		t.Fatalf("Send() to a nonexistent pid, want error")
	}
}

func TestFlagsRoundTrip(t *testing.T) {
	all := DisplayFlags{true, true, true, true, true, true, true, true}
	if got := byteToFlags(flagsToByte(all)); got != all {
		t.Fatalf("flags round trip = %+v, want %+v", got, all)
	}
	none := DisplayFlags{}
	if got := byteToFlags(flagsToByte(none)); got != none {
		t.Fatalf("flags round trip = %+v, want %+v", got, none)
	}
}

func TestPollReturnsFalseWithNoQueueFile(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	r, err := NewReceiver(999999)
	if err != nil {
		t.Fatalf("NewReceiver() error = %v", err)
	}
	_, ok, err := r.Poll()
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if ok {
		t.Fatalf("Poll() ok = true with no pending message")
	}
}

func TestReceiverRoundTripViaFilesystem(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)

	r, err := NewReceiver(12345)
	if err != nil {
		t.Fatalf("NewReceiver() error = %v", err)
	}

	m := Message{RecipientPID: 12345, RateLimit: 777, Name: "x", NameSet: true}
	buf := marshal(m)
	path := messagePath(r.dir, r.PID)
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}

	got, ok, err := r.Poll()
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if !ok {
		t.Fatalf("Poll() ok = false, want true")
	}
	if got.RateLimit != 777 || got.Name != "x" {
		t.Fatalf("Poll() = %+v, want RateLimit=777 Name=x", got)
	}

	if _, ok, _ := r.Poll(); ok {
		t.Fatalf("Poll() after dequeue still returned a message")
	}
}
