package frame

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/zhukovaskychina/rxmysql/internal/varint"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

// Algorithm identifies the negotiated compression scheme for the outer
// frame described in spec §4.1/§6: a second envelope layer
// (24-bit compressed length, 8-bit compression-seq, 24-bit
// uncompressed length, payload) wraps the inner envelope stream once the
// handshake has negotiated CLIENT_COMPRESS or the zstd algorithm.
type Algorithm int

const (
	AlgorithmNone Algorithm = iota
	AlgorithmZlib
	AlgorithmZstd
)

// compressedHeaderSize is the fixed 7-byte outer header: 3 bytes
// compressed length, 1 byte sequence, 3 bytes uncompressed length.
const compressedHeaderSize = 7

// uncompressedThreshold is the smallest payload MySQL bothers
// compressing; shorter payloads are sent with an uncompressed-length
// of 0, meaning "not compressed" (spec §6).
const uncompressedThreshold = 50

// CompressedCodec wraps a Codec's underlying reader/writer with the
// compressed-protocol outer frame. It owns its own sequence counter,
// independent of the inner envelope Codec's.
type CompressedCodec struct {
	r   io.Reader
	w   io.Writer
	alg Algorithm
	seq Seq

	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder

	level int // zlib compress level; for zstd, mapped to an encoder level by NewCompressed

	pending []byte // bytes decoded but not yet consumed by ReadFrame
}

// NewCompressed builds a CompressedCodec for the given algorithm. level
// is passed to zlib.NewWriterLevel for AlgorithmZlib; for AlgorithmZstd
// this constructor maps it through zstd.EncoderLevelFromZstd when it
// builds the encoder (spec's "zstdCompressionLevel 1-22" option).
func NewCompressed(r io.Reader, w io.Writer, alg Algorithm, level int) (*CompressedCodec, error) {
	cc := &CompressedCodec{r: r, w: w, alg: alg, level: level}
	if alg == AlgorithmZstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, xerrors.NewProtocolError("build zstd encoder", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, xerrors.NewProtocolError("build zstd decoder", err)
		}
		cc.zstdEnc = enc
		cc.zstdDec = dec
	}
	return cc, nil
}

// ResetSeq resets the outer-frame sequence counter (same reset events
// as the inner envelope Codec: post-login, compression upgrade).
func (cc *CompressedCodec) ResetSeq() { cc.seq.Reset() }

// Read implements io.Reader over the decompressed inner-envelope
// stream, so a CompressedCodec can be handed straight to frame.New as
// the inner Codec's reader once compression is negotiated.
func (cc *CompressedCodec) Read(p []byte) (int, error) {
	for len(cc.pending) == 0 {
		if err := cc.readFrame(); err != nil {
			return 0, err
		}
	}
	n := copy(p, cc.pending)
	cc.pending = cc.pending[n:]
	return n, nil
}

func (cc *CompressedCodec) readFrame() error {
	var hdr [compressedHeaderSize]byte
	if _, err := io.ReadFull(cc.r, hdr[:]); err != nil {
		return xerrors.NewProtocolError("read compressed frame header", err)
	}
	_, compLen := varint.ReadU24(hdr[:], 0)
	_, uncompLen := varint.ReadU24(hdr[:], 4)

	body := make([]byte, compLen)
	if compLen > 0 {
		if _, err := io.ReadFull(cc.r, body); err != nil {
			return xerrors.NewProtocolError("read compressed frame body", err)
		}
	}

	if uncompLen == 0 {
		// Not compressed: body is the raw inner-envelope bytes.
		cc.pending = body
		return nil
	}

	plain, err := cc.decompress(body, int(uncompLen))
	if err != nil {
		return xerrors.NewProtocolError("decompress frame body", err)
	}
	cc.pending = plain
	return nil
}

func (cc *CompressedCodec) decompress(body []byte, uncompLen int) ([]byte, error) {
	switch cc.alg {
	case AlgorithmZlib:
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		out := make([]byte, 0, uncompLen)
		buf := bytes.NewBuffer(out)
		if _, err := io.Copy(buf, zr); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case AlgorithmZstd:
		return cc.zstdDec.DecodeAll(body, make([]byte, 0, uncompLen))
	default:
		return body, nil
	}
}

// Write implements io.Writer: it compresses p (when it meets the
// size threshold) and emits one outer compressed frame.
func (cc *CompressedCodec) Write(p []byte) (int, error) {
	if err := cc.writeFrame(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (cc *CompressedCodec) writeFrame(payload []byte) error {
	var body []byte
	uncompLen := 0

	if len(payload) < uncompressedThreshold || cc.alg == AlgorithmNone {
		body = payload
	} else {
		compressed, err := cc.compress(payload)
		if err != nil {
			return xerrors.NewProtocolError("compress frame body", err)
		}
		body = compressed
		uncompLen = len(payload)
	}

	hdr := make([]byte, 0, compressedHeaderSize)
	hdr = varint.WriteU24(hdr, uint32(len(body)))
	hdr = varint.WriteByte(hdr, cc.seq.Next())
	hdr = varint.WriteU24(hdr, uint32(uncompLen))

	if _, err := cc.w.Write(hdr); err != nil {
		return xerrors.NewProtocolError("write compressed frame header", err)
	}
	if len(body) > 0 {
		if _, err := cc.w.Write(body); err != nil {
			return xerrors.NewProtocolError("write compressed frame body", err)
		}
	}
	return nil
}

func (cc *CompressedCodec) compress(payload []byte) ([]byte, error) {
	switch cc.alg {
	case AlgorithmZlib:
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, cc.level)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(payload); err != nil {
			zw.Close()
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case AlgorithmZstd:
		return cc.zstdEnc.EncodeAll(payload, nil), nil
	default:
		return payload, nil
	}
}

// Close releases the zstd encoder/decoder resources, if any were
// allocated for this codec.
func (cc *CompressedCodec) Close() error {
	if cc.zstdEnc != nil {
		cc.zstdEnc.Close()
	}
	if cc.zstdDec != nil {
		cc.zstdDec.Close()
	}
	return nil
}
