package core

// Frame is a raw text payload (one JSON message).
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// FrameReader is the inbound half of a connection.
// ReadFrame blocks until a frame arrives or the connection is closed.
type FrameReader interface {
	ReadFrame() (Frame, error)
}

// Conn is what a session coordinator owns for the lifetime of one connection.
type Conn interface {
	SignalConnection
	FrameReader
}
