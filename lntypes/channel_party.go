package lntypes

import "fmt"

// ChannelParty is a type used to have an unambiguous description of which node
// is being referred to. It is used to tell apart the holder of a commitment
// from its counterparty, which decides who broadcasts and who countersigns.
type ChannelParty uint8

const (
	// Local is a ChannelParty constructor that is used to refer to the
	// node that is running this code.
	Local ChannelParty = iota

	// Remote is a ChannelParty constructor that is used to refer to the
	// node on the other end of the channel.
	Remote
)

// String provides a string representation of ChannelParty (useful for logging).
func (p ChannelParty) String() string {
	switch p {
	case Local:
		return "Local"
	case Remote:
		return "Remote"
	default:
		panic(fmt.Sprintf("invalid ChannelParty value: %d", p))
	}
}

// CounterParty inverts the role of the ChannelParty.
func (p ChannelParty) CounterParty() ChannelParty {
	switch p {
	case Local:
		return Remote
	case Remote:
		return Local
	default:
		panic(fmt.Sprintf("invalid ChannelParty value: %v", p))
	}
}

// IsLocal returns true if the ChannelParty is Local.
func (p ChannelParty) IsLocal() bool {
	return p == Local
}

// IsRemote returns true if the ChannelParty is Remote.
func (p ChannelParty) IsRemote() bool {
	return p == Remote
}

// Dual represents a structure when we are tracking the same parameter for both
// the Local and Remote parties.
type Dual[A any] struct {
	// Local is the value tracked for the Local ChannelParty.
	Local A

	// Remote is the value tracked for the Remote ChannelParty.
	Remote A
}

// GetForParty gives Dual an access method that takes a ChannelParty as an
// argument.
func (d *Dual[A]) GetForParty(p ChannelParty) A {
	switch p {
	case Local:
		return d.Local
	case Remote:
		return d.Remote
	default:
		panic(fmt.Sprintf("switch default triggered in ForParty: %v",
			p))
	}
}

// MapDual applies the function argument to both the Local and Remote fields
// of the Dual[A] and returns a Dual[B] with that function applied.
func MapDual[A, B any](d Dual[A], f func(A) B) Dual[B] {
	return Dual[B]{
		Local:  f(d.Local),
		Remote: f(d.Remote),
	}
}
