package signaling

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
)

var ErrPeerClosed = errors.New("peer connection is closed")

// peer is the local side of a connection with one remote participant.
type peer struct {
	id string

	mx         *sync.Mutex
	pc         *webrtc.PeerConnection
	senders    map[string]*webrtc.RTPSender
	candidates []webrtc.ICECandidateInit
	closed     bool
}

func newPeer(id string, pc *webrtc.PeerConnection) *peer {
	return &peer{
		id:      id,
		mx:      &sync.Mutex{},
		pc:      pc,
		senders: make(map[string]*webrtc.RTPSender),
	}
}

// addTracks attaches tracks not yet sent to this peer. It reports whether anything changed.
func (p *peer) addTracks(tracks []webrtc.TrackLocal) (bool, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return false, ErrPeerClosed
	}

	var changed bool
	for _, t := range tracks {
		if _, ok := p.senders[t.ID()]; ok {
			continue
		}
		sender, err := p.pc.AddTrack(t)
		if err != nil {
			return changed, err
		}
		p.senders[t.ID()] = sender
		changed = true
	}
	return changed, nil
}

func (p *peer) removeTrack(trackID string) (bool, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return false, ErrPeerClosed
	}

	sender, ok := p.senders[trackID]
	if !ok {
		return false, nil
	}
	delete(p.senders, trackID)
	return true, p.pc.RemoveTrack(sender)
}

func (p *peer) offer() (webrtc.SessionDescription, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return webrtc.SessionDescription{}, ErrPeerClosed
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return offer, err
	}
	return offer, p.pc.SetLocalDescription(offer)
}

// answer applies a remote offer and produces the local answer.
func (p *peer) answer(sdp string) (webrtc.SessionDescription, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return webrtc.SessionDescription{}, ErrPeerClosed
	}

	err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err = p.flushCandidatesLocked(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return answer, err
	}
	return answer, p.pc.SetLocalDescription(answer)
}

func (p *peer) applyAnswer(sdp string) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return ErrPeerClosed
	}

	err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
	if err != nil {
		return err
	}
	return p.flushCandidatesLocked()
}

// addCandidate queues candidates that arrive before the remote description.
func (p *peer) addCandidate(c webrtc.ICECandidateInit) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return ErrPeerClosed
	}

	if p.pc.RemoteDescription() == nil {
		p.candidates = append(p.candidates, c)
		return nil
	}
	return p.pc.AddICECandidate(c)
}

func (p *peer) flushCandidatesLocked() error {
	candidates := p.candidates
	p.candidates = nil
	var errs []error
	for _, c := range candidates {
		if err := p.pc.AddICECandidate(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *peer) close() error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.pc.Close()
}
