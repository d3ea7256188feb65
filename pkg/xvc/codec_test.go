package xvc

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func TestReadMessage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Message
	}{
		{
			name: "getinfo",
			data: []byte("getinfo:"),
			want: GetInfo{},
		},
		{
			name: "settck",
			data: append([]byte("settck:"), 0x78, 0x56, 0x34, 0x12),
			want: SetTck{PeriodNs: 0x12345678},
		},
		{
			name: "shift 13 bits",
			data: append(append([]byte("shift:"), 0x0D, 0x00, 0x00, 0x00), 0xAA, 0x1F, 0x55, 0x03),
			want: Shift{NumBits: 13, TMS: []byte{0xAA, 0x1F}, TDI: []byte{0x55, 0x03}},
		},
		{
			name: "shift zero bits",
			data: append([]byte("shift:"), 0x00, 0x00, 0x00, 0x00),
			want: Shift{NumBits: 0, TMS: []byte{}, TDI: []byte{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadMessage(bytes.NewReader(tt.data), 0)
			if err != nil {
				t.Fatalf("ReadMessage() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ReadMessage() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestReadMessageErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		max     int
		wantErr error
	}{
		{
			name:    "unknown prefix",
			data:    []byte("xx"),
			wantErr: &CommandError{},
		},
		{
			name:    "typo in literal",
			data:    []byte("getinf:x"),
			wantErr: &CommandError{},
		},
		{
			name:    "wrong case",
			data:    []byte("GETINFO:"),
			wantErr: &CommandError{},
		},
		{
			name:    "empty stream",
			data:    nil,
			wantErr: io.EOF,
		},
		{
			name:    "truncated settck payload",
			data:    []byte("settck:\x0A"),
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "shift truncated mid tdi",
			data:    append(append([]byte("shift:"), 0x10, 0x00, 0x00, 0x00), 0xFF, 0xFF, 0x01),
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "vector exceeds ceiling",
			data:    append([]byte("shift:"), 0x08, 0x20, 0x00, 0x00),
			max:     1024,
			wantErr: &VectorTooLargeError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMessage(bytes.NewReader(tt.data), tt.max)
			if err == nil {
				t.Fatal("ReadMessage() expected error, got nil")
			}
			switch want := tt.wantErr.(type) {
			case *CommandError:
				var ce *CommandError
				if !errors.As(err, &ce) {
					t.Errorf("ReadMessage() error = %v, want CommandError", err)
				}
			case *VectorTooLargeError:
				var ve *VectorTooLargeError
				if !errors.As(err, &ve) {
					t.Errorf("ReadMessage() error = %v, want VectorTooLargeError", err)
				}
			default:
				if !errors.Is(err, want) {
					t.Errorf("ReadMessage() error = %v, want %v", err, want)
				}
			}
		})
	}
}

func TestReadMessageVectorCeiling(t *testing.T) {
	// 1025 bytes of vector against a 1024-byte ceiling.
	numBits := uint32(1025 * 8)
	data := []byte("shift:")
	data = append(data, byte(numBits), byte(numBits>>8), byte(numBits>>16), byte(numBits>>24))

	_, err := ReadMessage(bytes.NewReader(data), 1024)
	var ve *VectorTooLargeError
	if !errors.As(err, &ve) {
		t.Fatalf("ReadMessage() error = %v, want VectorTooLargeError", err)
	}
	if ve.Max != 1024 || ve.Got != 1025 {
		t.Errorf("VectorTooLargeError = {Max: %d, Got: %d}, want {1024, 1025}", ve.Max, ve.Got)
	}
}

func TestReadMessageConsumesExactly(t *testing.T) {
	// Two back-to-back messages: the first decode must not eat into the
	// second one's bytes.
	var stream bytes.Buffer
	stream.Write(append(append([]byte("shift:"), 0x08, 0x00, 0x00, 0x00), 0x00, 0xA5))
	stream.WriteString("getinfo:")

	first, err := ReadMessage(&stream, 0)
	if err != nil {
		t.Fatalf("first ReadMessage() error = %v", err)
	}
	if _, ok := first.(Shift); !ok {
		t.Fatalf("first ReadMessage() = %#v, want Shift", first)
	}

	second, err := ReadMessage(&stream, 0)
	if err != nil {
		t.Fatalf("second ReadMessage() error = %v", err)
	}
	if _, ok := second.(GetInfo); !ok {
		t.Errorf("second ReadMessage() = %#v, want GetInfo", second)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"getinfo", GetInfo{}},
		{"settck zero", SetTck{PeriodNs: 0}},
		{"settck max", SetTck{PeriodNs: 0xFFFFFFFF}},
		{"shift one byte", Shift{NumBits: 8, TMS: []byte{0x00}, TDI: []byte{0xA5}}},
		{"shift partial byte", Shift{NumBits: 5, TMS: []byte{0x1F}, TDI: []byte{0x0A}}},
		{"shift empty", Shift{NumBits: 0, TMS: []byte{}, TDI: []byte{}}},
		{"shift multi word", Shift{
			NumBits: 40,
			TMS:     []byte{0x01, 0x02, 0x03, 0x04, 0x05},
			TDI:     []byte{0xFF, 0xEE, 0xDD, 0xCC, 0xBB},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wire bytes.Buffer
			if err := WriteMessage(&wire, tt.msg); err != nil {
				t.Fatalf("WriteMessage() error = %v", err)
			}
			got, err := ReadMessage(&wire, 0)
			if err != nil {
				t.Fatalf("ReadMessage() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.msg) {
				t.Errorf("round trip = %#v, want %#v", got, tt.msg)
			}
			if wire.Len() != 0 {
				t.Errorf("decode left %d unread bytes", wire.Len())
			}
		})
	}
}

func TestWriteMessageWire(t *testing.T) {
	var out bytes.Buffer
	msg := Shift{NumBits: 13, TMS: []byte{0xAA, 0x1F}, TDI: []byte{0x55, 0x03}}
	if err := WriteMessage(&out, msg); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	want := append(append([]byte("shift:"), 0x0D, 0x00, 0x00, 0x00), 0xAA, 0x1F, 0x55, 0x03)
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("WriteMessage() = % X, want % X", out.Bytes(), want)
	}
}

func TestInfoWriteTo(t *testing.T) {
	var out bytes.Buffer
	info := Info{Version: V1_0, MaxBits: 10485760}
	if err := info.WriteTo(&out); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	if got := out.String(); got != "xvcServer_v1.0:10485760\n" {
		t.Errorf("WriteTo() = %q, want %q", got, "xvcServer_v1.0:10485760\n")
	}
}

func TestParseInfo(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Info
		wantErr bool
	}{
		{
			name: "valid",
			data: "xvcServer_v1.0:32\n",
			want: Info{Version: V1_0, MaxBits: 32},
		},
		{
			name: "valid large",
			data: "xvcServer_v1.0:10485760\n",
			want: Info{Version: V1_0, MaxBits: 10485760},
		},
		{
			name:    "bad prefix",
			data:    "someServer_v1.0:32\n",
			wantErr: true,
		},
		{
			name:    "unsupported version",
			data:    "xvcServer_v2.0:32\n",
			wantErr: true,
		},
		{
			name:    "missing separator",
			data:    "xvcServer_v1.0\n",
			wantErr: true,
		},
		{
			name:    "no newline",
			data:    "xvcServer_v1.0:32",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInfo(strings.NewReader(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseInfo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseInfo() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseInfoDoesNotReadAhead(t *testing.T) {
	r := strings.NewReader("xvcServer_v1.0:4096\nleftover")
	if _, err := ParseInfo(r); err != nil {
		t.Fatalf("ParseInfo() error = %v", err)
	}
	rest, _ := io.ReadAll(r)
	if string(rest) != "leftover" {
		t.Errorf("bytes after newline were consumed, remaining = %q", rest)
	}
}

func TestVectorBytes(t *testing.T) {
	tests := []struct {
		bits uint32
		want int
	}{
		{0, 0},
		{1, 1},
		{7, 1},
		{8, 1},
		{9, 2},
		{13, 2},
		{32, 4},
		{0xFFFFFFFF, 536870912},
	}
	for _, tt := range tests {
		if got := VectorBytes(tt.bits); got != tt.want {
			t.Errorf("VectorBytes(%d) = %d, want %d", tt.bits, got, tt.want)
		}
	}
}
