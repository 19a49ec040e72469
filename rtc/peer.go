package rtc

import (
	"net/netip"
	"strconv"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/pomelo-net/webrtc-plugin/errors"
)

// PeerConnectionOptions configure a peer connection.
type PeerConnectionOptions struct {
	Context *Context

	// Data is the consumer state attached to the connection.
	Data any
}

// PeerConnection wraps one pion peer connection. The closed state-change is
// guaranteed to be delivered exactly once, for local and remote closes
// alike; consumers hang reference drops off it.
type PeerConnection struct {
	ctx *Context
	pc  *webrtc.PeerConnection

	closedOnce sync.Once

	mu   sync.Mutex
	data any
}

// NewPeerConnection creates a peer connection with the context's ICE
// configuration and installs the context callbacks.
func NewPeerConnection(opts PeerConnectionOptions) (*PeerConnection, error) {
	if opts.Context == nil {
		return nil, errors.New("rtc: PeerConnection requires a context")
	}
	ctx := opts.Context

	configuration := webrtc.Configuration{}
	if len(ctx.iceServers) > 0 {
		configuration.ICEServers = []webrtc.ICEServer{{URLs: ctx.iceServers}}
	}

	pc, err := ctx.api.NewPeerConnection(configuration)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create peer connection")
	}

	p := &PeerConnection{ctx: ctx, pc: pc, data: opts.Data}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return // end of gathering
		}
		if cb := ctx.callbacks.PCLocalCandidate; cb != nil {
			init := candidate.ToJSON()
			mid := ""
			if init.SDPMid != nil {
				mid = *init.SDPMid
			}
			cb(p, init.Candidate, mid)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		mapped := mapPeerConnectionState(state)
		if mapped == PeerConnectionStateClosed {
			p.fireClosed()
			return
		}
		if cb := ctx.callbacks.PCStateChange; cb != nil {
			cb(p, mapped)
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		wrapped := newDataChannel(ctx, dc)
		if cb := ctx.callbacks.PCDataChannel; cb != nil {
			cb(p, wrapped)
		}
	})

	return p, nil
}

func mapPeerConnectionState(state webrtc.PeerConnectionState) PeerConnectionState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return PeerConnectionStateNew
	case webrtc.PeerConnectionStateConnecting:
		return PeerConnectionStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return PeerConnectionStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return PeerConnectionStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return PeerConnectionStateFailed
	default:
		return PeerConnectionStateClosed
	}
}

// DataChannelReliability selects the delivery tier of a data channel.
type DataChannelReliability struct {
	// Unreliable drops frames instead of retransmitting.
	Unreliable bool

	// Unordered allows out-of-order delivery.
	Unordered bool
}

// CreateDataChannel creates the outgoing data channel for one stream.
func (p *PeerConnection) CreateDataChannel(label string, reliability DataChannelReliability, data any) (*DataChannel, error) {
	ordered := !reliability.Unordered
	init := &webrtc.DataChannelInit{Ordered: &ordered}
	if reliability.Unreliable {
		var retransmits uint16
		init.MaxRetransmits = &retransmits
	}

	dc, err := p.pc.CreateDataChannel(label, init)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create data channel %q", label)
	}

	wrapped := newDataChannel(p.ctx, dc)
	wrapped.SetData(data)
	return wrapped, nil
}

// SetLocalDescription generates and applies the local description.
// An empty descriptionType produces an offer, per the provider convention.
func (p *PeerConnection) SetLocalDescription(descriptionType string) error {
	switch descriptionType {
	case "", "offer":
		offer, err := p.pc.CreateOffer(nil)
		if err != nil {
			return errors.Wrap(err, "failed to create offer")
		}
		return errors.Wrap(p.pc.SetLocalDescription(offer), "failed to set local offer")
	case "answer":
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return errors.Wrap(err, "failed to create answer")
		}
		return errors.Wrap(p.pc.SetLocalDescription(answer), "failed to set local answer")
	default:
		return errors.Newf("unsupported local description type %q", descriptionType)
	}
}

// LocalDescriptionSDP returns the current local SDP, or empty.
func (p *PeerConnection) LocalDescriptionSDP() string {
	if desc := p.pc.LocalDescription(); desc != nil {
		return desc.SDP
	}
	return ""
}

// LocalDescriptionType returns the current local description type, or empty.
func (p *PeerConnection) LocalDescriptionType() string {
	if desc := p.pc.LocalDescription(); desc != nil {
		return desc.Type.String()
	}
	return ""
}

// SetRemoteDescription applies the peer's description.
func (p *PeerConnection) SetRemoteDescription(sdp, descriptionType string) error {
	description := webrtc.SessionDescription{
		Type: webrtc.NewSDPType(descriptionType),
		SDP:  sdp,
	}
	return errors.Wrapf(p.pc.SetRemoteDescription(description),
		"failed to set remote %s", descriptionType)
}

// AddRemoteCandidate applies one trickled ICE candidate.
func (p *PeerConnection) AddRemoteCandidate(candidate, mid string) error {
	init := webrtc.ICECandidateInit{Candidate: candidate}
	if mid != "" {
		init.SDPMid = &mid
	}
	return errors.Wrap(p.pc.AddICECandidate(init), "failed to add remote candidate")
}

// RemoteAddr returns the peer's transport address from the selected
// candidate pair. Only available once the connection is established.
func (p *PeerConnection) RemoteAddr() (netip.AddrPort, error) {
	sctp := p.pc.SCTP()
	if sctp == nil || sctp.Transport() == nil || sctp.Transport().ICETransport() == nil {
		return netip.AddrPort{}, errors.New("rtc: no transport established")
	}
	pair, err := sctp.Transport().ICETransport().GetSelectedCandidatePair()
	if err != nil {
		return netip.AddrPort{}, errors.Wrap(err, "failed to get selected candidate pair")
	}
	if pair == nil || pair.Remote == nil {
		return netip.AddrPort{}, errors.New("rtc: no selected candidate pair")
	}

	addrPort, err := netip.ParseAddrPort(
		netJoin(pair.Remote.Address, int(pair.Remote.Port)))
	if err != nil {
		return netip.AddrPort{}, errors.Wrapf(err, "bad remote candidate address %q", pair.Remote.Address)
	}
	return addrPort, nil
}

func netJoin(address string, port int) string {
	addr, err := netip.ParseAddr(address)
	if err == nil && addr.Is6() {
		return "[" + address + "]:" + strconv.Itoa(port)
	}
	return address + ":" + strconv.Itoa(port)
}

func (p *PeerConnection) fireClosed() {
	p.closedOnce.Do(func() {
		if cb := p.ctx.callbacks.PCStateChange; cb != nil {
			cb(p, PeerConnectionStateClosed)
		}
	})
}

// Close tears the connection down; the state-change callback delivers the
// closed notification exactly once.
func (p *PeerConnection) Close() {
	if err := p.pc.Close(); err != nil {
		p.ctx.log.Debugw("peer connection close", "error", err)
	}
	p.fireClosed()
}

// Destroy releases the connection after close.
func (p *PeerConnection) Destroy() {
	p.SetData(nil)
}

// SetData attaches consumer state to the connection.
func (p *PeerConnection) SetData(data any) {
	p.mu.Lock()
	p.data = data
	p.mu.Unlock()
}

// Data returns the attached consumer state.
func (p *PeerConnection) Data() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}
