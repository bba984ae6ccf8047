package tcpserver

// TCPServerSession is implemented by each connection session. The server
// creates one per accepted connection and runs Handle in its own goroutine;
// Close must make a blocked Handle return.
type TCPServerSession interface {
	// ID returns the identifier assigned by the server.
	ID() uint32

	// Handle runs the session until the connection ends. The server removes
	// the session from its table when Handle returns.
	Handle()

	// Close closes the underlying connection. It may be called more than once
	// and concurrently with Handle.
	Close() error
}
