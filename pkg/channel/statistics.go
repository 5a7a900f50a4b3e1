package channel

import "sync/atomic"

// Statistics tracks channel-level statistics
type Statistics struct {
	// Envelope statistics
	numFramesTx      uint64
	numFramesRx      uint64
	numInvalidFrames uint64
	numBadFrames     uint64

	// Client statistics
	numClientsConnected    uint64
	numClientsDisconnected uint64
	numActiveClients       uint64
	numConnectFailures     uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// FrameTx increments transmitted frames
func (s *Statistics) FrameTx() {
	atomic.AddUint64(&s.numFramesTx, 1)
}

// FrameRx increments received frames delivered to the message callback
func (s *Statistics) FrameRx() {
	atomic.AddUint64(&s.numFramesRx, 1)
}

// InvalidFrame increments frames dropped because the sender is not registered
func (s *Statistics) InvalidFrame() {
	atomic.AddUint64(&s.numInvalidFrames, 1)
}

// BadFrame increments frames that could not be decomposed
func (s *Statistics) BadFrame() {
	atomic.AddUint64(&s.numBadFrames, 1)
}

// ClientConnected increments connected clients
func (s *Statistics) ClientConnected() {
	atomic.AddUint64(&s.numClientsConnected, 1)
}

// ClientDisconnected increments disconnected clients
func (s *Statistics) ClientDisconnected() {
	atomic.AddUint64(&s.numClientsDisconnected, 1)
}

// ConnectFailure increments failed outbound connects
func (s *Statistics) ConnectFailure() {
	atomic.AddUint64(&s.numConnectFailures, 1)
}

// SetActiveClients sets the number of registered clients
func (s *Statistics) SetActiveClients(count uint64) {
	atomic.StoreUint64(&s.numActiveClients, count)
}

// GetFramesTx returns transmitted frames
func (s *Statistics) GetFramesTx() uint64 {
	return atomic.LoadUint64(&s.numFramesTx)
}

// GetFramesRx returns received frames
func (s *Statistics) GetFramesRx() uint64 {
	return atomic.LoadUint64(&s.numFramesRx)
}

// GetInvalidFrames returns frames dropped from unregistered senders
func (s *Statistics) GetInvalidFrames() uint64 {
	return atomic.LoadUint64(&s.numInvalidFrames)
}

// GetBadFrames returns frames that failed to decompose
func (s *Statistics) GetBadFrames() uint64 {
	return atomic.LoadUint64(&s.numBadFrames)
}

// GetClientsConnected returns connected clients
func (s *Statistics) GetClientsConnected() uint64 {
	return atomic.LoadUint64(&s.numClientsConnected)
}

// GetClientsDisconnected returns disconnected clients
func (s *Statistics) GetClientsDisconnected() uint64 {
	return atomic.LoadUint64(&s.numClientsDisconnected)
}

// GetActiveClients returns number of registered clients
func (s *Statistics) GetActiveClients() uint64 {
	return atomic.LoadUint64(&s.numActiveClients)
}

// GetConnectFailures returns failed outbound connects
func (s *Statistics) GetConnectFailures() uint64 {
	return atomic.LoadUint64(&s.numConnectFailures)
}

// Reset resets all statistics
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.numFramesTx, 0)
	atomic.StoreUint64(&s.numFramesRx, 0)
	atomic.StoreUint64(&s.numInvalidFrames, 0)
	atomic.StoreUint64(&s.numBadFrames, 0)
	atomic.StoreUint64(&s.numClientsConnected, 0)
	atomic.StoreUint64(&s.numClientsDisconnected, 0)
	atomic.StoreUint64(&s.numConnectFailures, 0)
}
