package rxmysql

import "github.com/zhukovaskychina/rxmysql/internal/frame"

// frameEnvelopeCodec adapts *frame.Codec to internal/connio's
// EnvelopeCodec interface: connio reads back a plain byte slice plus a
// release callback rather than a *frame.Buffer directly, so that
// package stays independent of internal/frame's reference-counting
// type.
type frameEnvelopeCodec struct {
	codec *frame.Codec
}

func (a *frameEnvelopeCodec) ReadPayload() ([]byte, func(), error) {
	buf, err := a.codec.ReadPayload()
	if err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), buf.Release, nil
}

func (a *frameEnvelopeCodec) WritePayload(payload []byte) error { return a.codec.WritePayload(payload) }

func (a *frameEnvelopeCodec) ResetSeq() { a.codec.ResetSeq() }
