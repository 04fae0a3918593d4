package app

import "github.com/dkeye/Share/internal/domain"

// SendFailureAction says how a peer whose send failed is torn down. A failed
// send always ends that peer's session.
type SendFailureAction int

const (
	// EvictPeer unregisters the peer and cancels its coordinator, which
	// closes the connection on its way out.
	EvictPeer SendFailureAction = iota
	// ClosePeer also closes the handle right away.
	ClosePeer
)

type Policy interface {
	OnSendFailure(id domain.Identity, err error) SendFailureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnSendFailure(domain.Identity, error) SendFailureAction {
	return EvictPeer
}

// ClosePolicy is for handles registered without an owning context.
type ClosePolicy struct{}

func (ClosePolicy) OnSendFailure(domain.Identity, error) SendFailureAction {
	return ClosePeer
}
