package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/pion/webrtc/v4"
)

// ICEProvider observes the local address from host ICE candidates. No
// signaling or remote peer is involved: a peer connection with no ICE
// servers is created, a throwaway data channel forces gathering, and the
// first IPv4 host candidate is taken. The peer connection is closed as soon
// as one usable candidate arrives.
type ICEProvider struct {
	Logger *slog.Logger
}

// LocalAddress gathers host candidates until an IPv4 one is found or ctx ends.
func (p ICEProvider) LocalAddress(ctx context.Context) (net.IP, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	var closeOnce sync.Once
	closePC := func() {
		closeOnce.Do(func() {
			if err := pc.Close(); err != nil && p.Logger != nil {
				p.Logger.Debug("closing ICE peer connection", "error", err)
			}
		})
	}
	defer closePC()

	found := make(chan net.IP, 1)
	gatheringDone := make(chan struct{})
	var doneOnce sync.Once

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			doneOnce.Do(func() { close(gatheringDone) })
			return
		}
		ip := candidateIPv4(c)
		if ip == nil {
			return
		}
		select {
		case found <- ip:
		default:
		}
	})

	if _, err := pc.CreateDataChannel("", nil); err != nil {
		return nil, fmt.Errorf("creating data channel: %w", err)
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("creating offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("setting local description: %w", err)
	}

	select {
	case ip := <-found:
		pc.OnICECandidate(func(*webrtc.ICECandidate) {})
		if p.Logger != nil {
			p.Logger.Debug("local address from ICE candidate", "ip", ip.String())
		}
		return ip, nil
	case <-gatheringDone:
		select {
		case ip := <-found:
			return ip, nil
		default:
		}
		return nil, fmt.Errorf("%w: no IPv4 host candidate", ErrUnresolved)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// candidateIPv4 returns the candidate's address when it is an IPv4 host
// candidate.
func candidateIPv4(c *webrtc.ICECandidate) net.IP {
	if c.Typ != webrtc.ICECandidateTypeHost {
		return nil
	}
	ip := net.ParseIP(c.Address)
	if ip == nil {
		return nil
	}
	return ip.To4()
}

var _ LocalAddressProvider = ICEProvider{}
