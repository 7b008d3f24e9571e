package protocol

// LocalInfileChunk is one file-content chunk sent in response to a
// LocalInfileRequest; a zero-length chunk signals end-of-file
// (spec §4.3 "the stream must always end with a zero-length payload",
// and §4.6 "driver responds with file chunks or an empty chunk if the
// path is disallowed").
type LocalInfileChunk struct {
	Data []byte
}

func (*LocalInfileChunk) isClientMessage() {}

func (c *LocalInfileChunk) Encode() []byte {
	return c.Data
}

// EmptyLocalInfileChunk is the canonical "disallowed path" / "refused"
// response: exactly one zero-length data envelope (spec §4.6 scenario 4).
func EmptyLocalInfileChunk() *LocalInfileChunk {
	return &LocalInfileChunk{Data: nil}
}
