package codec

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	enc := NewEncoder(64)
	enc.WriteUint8(7)
	enc.WriteBool(true)
	enc.WriteBool(false)
	enc.WriteUint32(1 << 31)
	enc.WriteUint64(18446744073709551615)
	enc.WriteInt32(-5)
	enc.WriteInt64(-1 << 40)
	enc.WriteString("你好世界")
	enc.WriteBytes(nil)
	enc.WriteBytes([]byte{})
	enc.WriteBytes([]byte{0, 1, 254, 255})
	enc.WriteStrings([]string{"a", "", "c"})
	enc.WriteInts([]int{3, -1, 0})
	enc.WriteBytesMap(map[string][]byte{"k1": []byte("v1"), "k2": nil})
	enc.WriteBytesMap(nil)

	dec := NewDecoder(enc.Bytes())
	if v := dec.ReadUint8(); v != 7 {
		t.Errorf("ReadUint8() = %d", v)
	}
	if !dec.ReadBool() || dec.ReadBool() {
		t.Errorf("ReadBool() mismatch")
	}
	if v := dec.ReadUint32(); v != 1<<31 {
		t.Errorf("ReadUint32() = %d", v)
	}
	if v := dec.ReadUint64(); v != 18446744073709551615 {
		t.Errorf("ReadUint64() = %d", v)
	}
	if v := dec.ReadInt32(); v != -5 {
		t.Errorf("ReadInt32() = %d", v)
	}
	if v := dec.ReadInt64(); v != -1<<40 {
		t.Errorf("ReadInt64() = %d", v)
	}
	if v := dec.ReadString(); v != "你好世界" {
		t.Errorf("ReadString() = %q", v)
	}
	if v := dec.ReadBytes(); v != nil {
		t.Errorf("ReadBytes() = %v, want nil", v)
	}
	if v := dec.ReadBytes(); v == nil || len(v) != 0 {
		t.Errorf("ReadBytes() = %v, want empty non nil slice", v)
	}
	if v := dec.ReadBytes(); !bytes.Equal(v, []byte{0, 1, 254, 255}) {
		t.Errorf("ReadBytes() = %v", v)
	}
	if v := dec.ReadStrings(); !reflect.DeepEqual(v, []string{"a", "", "c"}) {
		t.Errorf("ReadStrings() = %v", v)
	}
	if v := dec.ReadInts(); !reflect.DeepEqual(v, []int{3, -1, 0}) {
		t.Errorf("ReadInts() = %v", v)
	}
	m := dec.ReadBytesMap()
	if len(m) != 2 || !bytes.Equal(m["k1"], []byte("v1")) || m["k2"] != nil {
		t.Errorf("ReadBytesMap() = %v", m)
	}
	if _, ok := m["k2"]; !ok {
		t.Errorf("key with nil value lost")
	}
	if v := dec.ReadBytesMap(); v != nil {
		t.Errorf("ReadBytesMap() = %v, want nil", v)
	}
	if err := dec.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", dec.Remaining())
	}
}

func TestShortBuffer(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		read func(d *Decoder)
	}{
		{"uint64", []byte{1, 2, 3}, func(d *Decoder) { d.ReadUint64() }},
		{"string length", []byte{0, 0, 0, 9, 'a'}, func(d *Decoder) { d.ReadString() }},
		{"bytes", []byte{1, 0, 0, 0, 4, 1}, func(d *Decoder) { d.ReadBytes() }},
		{"huge list", []byte{0xff, 0xff, 0xff, 0xff}, func(d *Decoder) { d.ReadStrings() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder(tt.data)
			tt.read(dec)
			if !errors.Is(dec.Err(), ErrShortBuffer) {
				t.Errorf("Err() = %v, want ErrShortBuffer", dec.Err())
			}
			// following reads are no-ops
			if v := dec.ReadUint32(); v != 0 {
				t.Errorf("read after error returned %d", v)
			}
		})
	}
}

func TestDeterministicMapEncoding(t *testing.T) {
	m := map[string][]byte{"b": []byte("2"), "a": []byte("1"), "c": []byte("3")}
	first := NewEncoder(0)
	first.WriteBytesMap(m)
	for i := 0; i < 10; i++ {
		enc := NewEncoder(0)
		enc.WriteBytesMap(m)
		if !bytes.Equal(first.Bytes(), enc.Bytes()) {
			t.Fatalf("map encoding is not deterministic")
		}
	}
}
