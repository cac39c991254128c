package app

import "net/netip"

type FailureAction int

const (
	NoAction FailureAction = iota
	KickMember
)

// Policy decides what happens to a recipient whose broadcast send failed.
type Policy interface {
	OnSendFailure(addr netip.AddrPort, err error) FailureAction
}

// SimplePolicy evicts on the first failed send.
type SimplePolicy struct{}

func (SimplePolicy) OnSendFailure(netip.AddrPort, error) FailureAction {
	return KickMember
}
