package packet

import "testing"

func TestWriteReadName(t *testing.T) {
	buf := NewBytePacketBuffer()
	buf.HasNames = true

	if err := buf.WriteName("www.example.com"); err != nil {
		t.Fatalf("WriteName: %v", err)
	}
	end := buf.Position()
	buf.Seek(0)

	name, err := buf.ReadName()
	if err != nil {
		t.Fatalf("ReadName: %v", err)
	}
	if name != "www.example.com." {
		t.Errorf("got %q, want %q", name, "www.example.com.")
	}
	if buf.Position() != end {
		t.Errorf("cursor ended at %d, want %d", buf.Position(), end)
	}
}

func TestWriteNameCompression(t *testing.T) {
	buf := NewBytePacketBuffer()
	buf.HasNames = true

	if err := buf.WriteName("example.com"); err != nil {
		t.Fatalf("first WriteName: %v", err)
	}
	firstLen := buf.Position()

	if err := buf.WriteName("example.com"); err != nil {
		t.Fatalf("second WriteName: %v", err)
	}
	secondLen := buf.Position() - firstLen

	// A compressed repeat of the same name is just a 2-byte pointer.
	if secondLen != 2 {
		t.Errorf("compressed repeat used %d bytes, want 2", secondLen)
	}

	buf.Seek(firstLen)
	name, err := buf.ReadName()
	if err != nil {
		t.Fatalf("ReadName pointer: %v", err)
	}
	if name != "example.com." {
		t.Errorf("got %q, want %q", name, "example.com.")
	}
}

func TestWriteNameLowercases(t *testing.T) {
	buf := NewBytePacketBuffer()
	if err := buf.WriteName("WWW.Example.COM"); err != nil {
		t.Fatalf("WriteName: %v", err)
	}
	buf.Seek(0)
	name, err := buf.ReadName()
	if err != nil {
		t.Fatalf("ReadName: %v", err)
	}
	if name != "www.example.com." {
		t.Errorf("got %q, want lowercase round-trip", name)
	}
}

func TestReadNameRoot(t *testing.T) {
	buf := NewBytePacketBuffer()
	if err := buf.WriteName("."); err != nil {
		t.Fatalf("WriteName: %v", err)
	}
	buf.Seek(0)
	name, err := buf.ReadName()
	if err != nil {
		t.Fatalf("ReadName: %v", err)
	}
	if name != "." {
		t.Errorf("got %q, want \".\"", name)
	}
}

func TestWriteNameLabelTooLong(t *testing.T) {
	buf := NewBytePacketBuffer()
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	if err := buf.WriteName(string(long) + ".com"); err == nil {
		t.Error("expected error for label over 63 bytes")
	}
}

func TestReadWriteU16U32(t *testing.T) {
	buf := NewBytePacketBuffer()
	if err := buf.Writeu16(0xABCD); err != nil {
		t.Fatalf("Writeu16: %v", err)
	}
	if err := buf.Writeu32(0x12345678); err != nil {
		t.Fatalf("Writeu32: %v", err)
	}
	buf.Seek(0)
	v16, err := buf.Readu16()
	if err != nil || v16 != 0xABCD {
		t.Errorf("Readu16 = %x, %v", v16, err)
	}
	v32, err := buf.Readu32()
	if err != nil || v32 != 0x12345678 {
		t.Errorf("Readu32 = %x, %v", v32, err)
	}
}

func TestBufferPool(t *testing.T) {
	b := GetBuffer()
	b.Write(1) // #nosec G104
	PutBuffer(b)

	b2 := GetBuffer()
	if b2.Position() != 0 {
		t.Errorf("pooled buffer should reset position, got %d", b2.Position())
	}
}
