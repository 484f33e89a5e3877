package yenc

import (
	"hash/crc32"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseYBegin(t *testing.T) {
	h, err := ParseYBegin("=ybegin line=128 size=123456 name=testfile.bin")
	require.NoError(t, err)
	require.Equal(t, 128, h.Line)
	require.EqualValues(t, 123456, h.Size)
	require.Equal(t, "testfile.bin", h.Name)
	require.Zero(t, h.Part)
}

func TestParseYBeginMultipart(t *testing.T) {
	h, err := ParseYBegin("=ybegin part=2 total=5 line=128 size=123456 name=testfile.bin")
	require.NoError(t, err)
	require.Equal(t, 2, h.Part)
	require.Equal(t, 5, h.Total)
}

func TestParseYPart(t *testing.T) {
	h, err := ParseYPart("=ypart begin=1 end=100000")
	require.NoError(t, err)
	require.EqualValues(t, 1, h.Begin)
	require.EqualValues(t, 100000, h.End)
}

func TestParseYEnd(t *testing.T) {
	h, err := ParseYEnd("=yend size=123456 crc32=deadbeef")
	require.NoError(t, err)
	require.EqualValues(t, 123456, h.Size)
	require.True(t, h.HasCRC)
	require.EqualValues(t, 0xdeadbeef, h.CRC32)
}

func TestParseYEndMalformed(t *testing.T) {
	_, err := ParseYEnd("not a yend line")
	require.Error(t, err)
	var yErr *Error
	require.ErrorAs(t, err, &yErr)
	require.Equal(t, KindMalformedLine, yErr.Kind)
}

// decodeFull decodes a full set of already-line-split yEnc lines via fn,
// returning the concatenated raw bytes and the running CRC32.
func decodeFull(t *testing.T, fn func(dst, src []byte, pending *bool) []byte, lines [][]byte) ([]byte, uint32) {
	t.Helper()
	var pending bool
	var out []byte
	crc := uint32(0)
	var buf []byte
	for _, line := range lines {
		buf = fn(buf[:0], line, &pending)
		out = append(out, buf...)
		crc = crc32.Update(crc, crc32.IEEETable, buf)
	}
	return out, crc
}

func splitLines(encoded []byte, width int) [][]byte {
	var lines [][]byte
	for len(encoded) > 0 {
		n := width
		if n > len(encoded) {
			n = len(encoded)
		}
		// never split an escape sequence across our synthetic line boundary;
		// real encoders guarantee this too since "=X" is always emitted together.
		if n < len(encoded) && encoded[n-1] == '=' {
			n++
		}
		lines = append(lines, encoded[:n])
		encoded = encoded[n:]
	}
	return lines
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		raw := make([]byte, 1+rng.Intn(4000))
		rng.Read(raw)

		encoded := EncodeLine(raw)
		lines := splitLines(encoded, 128)

		decoded, _ := decodeFull(t, decodeLineScalar, lines)
		require.Equal(t, raw, decoded, "trial %d", trial)
	}
}

func TestScalarWideEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		raw := make([]byte, rng.Intn(2000))
		rng.Read(raw)
		encoded := EncodeLine(raw)
		lines := splitLines(encoded, 64)

		scalarOut, scalarCRC := decodeFull(t, decodeLineScalar, lines)
		wideOut, wideCRC := decodeFull(t, decodeLineWide, lines)

		require.Equal(t, scalarOut, wideOut, "trial %d", trial)
		require.Equal(t, scalarCRC, wideCRC, "trial %d", trial)
	}
}

func TestDecoderCRC32(t *testing.T) {
	raw := []byte("the quick brown fox jumps over the lazy dog")
	encoded := EncodeLine(raw)

	d := NewDecoder()
	out := d.DecodeLine(nil, encoded)
	require.Equal(t, raw, out)
	require.Equal(t, crc32.ChecksumIEEE(raw), d.CRC32())
}

func TestUnstuff(t *testing.T) {
	require.Equal(t, []byte(".foo"), unstuff([]byte("..foo")))
	require.Equal(t, []byte(".bar"), unstuff([]byte(".bar")))
	require.Equal(t, []byte("plain"), unstuff([]byte("plain")))
}

func TestCombineCRC32(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	a := make([]byte, 1000)
	b := make([]byte, 1500)
	rng.Read(a)
	rng.Read(b)

	whole := crc32.ChecksumIEEE(append(append([]byte{}, a...), b...))
	crc1 := crc32.ChecksumIEEE(a)
	crc2 := crc32.ChecksumIEEE(b)

	combined := CombineCRC32(crc1, crc2, int64(len(b)))
	require.Equal(t, whole, combined)
}

func TestCombineCRC32ZeroLength(t *testing.T) {
	crc1 := uint32(0x12345678)
	require.Equal(t, crc1, CombineCRC32(crc1, 0, 0))
}
