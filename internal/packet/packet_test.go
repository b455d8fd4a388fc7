package packet

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{Size: HeaderSize, ID: 0},
		{Size: 1234, ID: 101},
		{Size: MaxPacketSize, ID: 65535},
	}
	for _, h := range cases {
		buf := make([]byte, HeaderSize)
		EncodeHeader(buf, h)
		got := DecodeHeader(buf)
		if got != h {
			t.Fatalf("round trip mismatch: want %+v got %+v", h, got)
		}
	}
}

func TestHeaderValid(t *testing.T) {
	tests := []struct {
		size uint16
		want bool
	}{
		{0, false},
		{HeaderSize - 1, false},
		{HeaderSize, true},
		{MaxPacketSize, true},
		{MaxPacketSize + 1, false},
	}
	for _, tc := range tests {
		h := Header{Size: tc.size}
		if got := h.Valid(); got != tc.want {
			t.Errorf("Header{Size:%d}.Valid() = %v, want %v", tc.size, got, tc.want)
		}
	}
}

func TestPoolAcquireRelease(t *testing.T) {
	p := NewPool(0)

	pkt, ok := p.Acquire(100)
	if !ok {
		t.Fatal("acquire failed")
	}
	if pkt.RefCount != 1 {
		t.Fatalf("new packet RefCount = %d, want 1", pkt.RefCount)
	}
	if pkt.Cap() < 100 {
		t.Fatalf("capacity %d < requested 100", pkt.Cap())
	}

	pkt.AddRef()
	if pkt.RefCount != 2 {
		t.Fatalf("RefCount after AddRef = %d, want 2", pkt.RefCount)
	}

	if freed := pkt.Release(); freed {
		t.Fatal("Release at count 2->1 should not free")
	}
	if freed := pkt.Release(); !freed {
		t.Fatal("Release at count 1->0 should free")
	}

	total, pooled := p.Stats()
	if total != 1 || pooled != 1 {
		t.Fatalf("pool stats = (%d,%d), want (1,1)", total, pooled)
	}
}

func TestPoolReusesFreedBuffer(t *testing.T) {
	p := NewPool(0)
	pkt, _ := p.Acquire(100)
	addr := &pkt.buf[0]
	pkt.Release()

	pkt2, ok := p.Acquire(100)
	if !ok {
		t.Fatal("second acquire failed")
	}
	if &pkt2.buf[0] != addr {
		t.Fatal("pool did not reuse the released buffer")
	}
	if pkt2.UsedSize != 0 {
		t.Fatalf("reused packet UsedSize = %d, want 0", pkt2.UsedSize)
	}
}

func TestPoolHardCap(t *testing.T) {
	p := NewPool(1)
	if _, ok := p.Acquire(100); !ok {
		t.Fatal("first acquire under cap should succeed")
	}
	if _, ok := p.Acquire(100); ok {
		t.Fatal("second acquire over cap should fail")
	}
}

func TestPacketBodyAndBytes(t *testing.T) {
	p := NewPool(0)
	pkt, _ := p.Acquire(HeaderSize + 10)
	EncodeHeader(pkt.buf, Header{Size: HeaderSize + 3, ID: 101})
	copy(pkt.buf[HeaderSize:], []byte{1, 2, 3})
	pkt.UsedSize = HeaderSize + 3

	if got := pkt.Body(); len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("Body() = %v, want [1 2 3]", got)
	}
	if len(pkt.Bytes()) != HeaderSize+3 {
		t.Fatalf("Bytes() len = %d, want %d", len(pkt.Bytes()), HeaderSize+3)
	}
}
