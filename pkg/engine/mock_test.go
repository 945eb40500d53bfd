package engine

import (
	"bytes"
	"encoding/binary"
)

// MockCloser lets an in-memory buffer stand in for a pipe end.
type MockCloser struct {
	*bytes.Buffer
	closed bool
}

func (m *MockCloser) Close() error {
	m.closed = true
	return nil
}

// newMockWorker returns a worker whose data pipe already holds the given
// reply payloads, each framed with its length.
func newMockWorker(replies ...[]byte) (*Worker, *MockCloser, *MockCloser) {
	stdin := &MockCloser{Buffer: new(bytes.Buffer)}
	data := &MockCloser{Buffer: new(bytes.Buffer)}
	for _, r := range replies {
		binary.Write(data, binary.BigEndian, uint32(len(r)))
		data.Write(r)
	}
	return &Worker{Stdin: stdin, DataPipe: data}, stdin, data
}

// replyBuilder assembles worker replies the way the worker process does.
type replyBuilder struct {
	bytes.Buffer
}

func okReply() *replyBuilder {
	b := &replyBuilder{}
	b.WriteByte(statusOK)
	return b
}

func errorReply(msg string) []byte {
	b := &replyBuilder{}
	b.WriteByte(statusError)
	binary.Write(b, binary.BigEndian, uint32(len(msg)))
	b.WriteString(msg)
	return b.Bytes()
}

func (b *replyBuilder) u32(v uint32) *replyBuilder {
	binary.Write(b, binary.BigEndian, v)
	return b
}

func (b *replyBuilder) f32(v ...float32) *replyBuilder {
	binary.Write(b, binary.BigEndian, v)
	return b
}

func (b *replyBuilder) face(box [4]float32, score float32, kps [][2]float32, emb []float32) *replyBuilder {
	b.f32(box[:]...)
	b.f32(score)
	b.u32(uint32(len(kps)))
	for _, p := range kps {
		b.f32(p[0], p[1])
	}
	b.u32(uint32(len(emb)))
	if len(emb) > 0 {
		b.f32(emb...)
	}
	return b
}

func (b *replyBuilder) image(w, h int, fill byte) *replyBuilder {
	b.u32(uint32(w)).u32(uint32(h))
	b.Write(bytes.Repeat([]byte{fill}, w*h*4))
	return b
}
