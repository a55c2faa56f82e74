// Package signaling manages the WebRTC mesh of a meeting participant: one peer connection
// per remote participant, negotiated through peer messages relayed by the room socket.
package signaling

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/adwski/meeting-room/client/action"
	"github.com/adwski/meeting-room/client/store"
	"github.com/adwski/meeting-room/wire"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const dataChannelLabel = "meeting"

var (
	ErrUnknownPeer = errors.New("unknown peer")
	ErrNoStream    = errors.New("stream is not known")
)

type (
	Config struct {
		Logger     *zerolog.Logger
		ICEServers []string
		Source     MediaSource
		UserName   string
	}

	Service struct {
		logger    zerolog.Logger
		rtcConfig webrtc.Configuration
		source    MediaSource
		userName  string
		localID   *atomic.String

		mx      *sync.Mutex
		peers   map[string]*peer
		streams map[string][]webrtc.TrackLocal
		stream  string
		screen  webrtc.TrackLocal
	}
)

func NewService(cfg Config) *Service {
	var ice []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		ice = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	source := cfg.Source
	if source == nil {
		source = StaticSource{}
	}
	return &Service{
		logger:    cfg.Logger.With().Str("component", "signaling").Logger(),
		rtcConfig: webrtc.Configuration{ICEServers: ice},
		source:    source,
		userName:  cfg.UserName,
		localID:   atomic.NewString(""),
		mx:        &sync.Mutex{},
		peers:     make(map[string]*peer),
		streams:   make(map[string][]webrtc.TrackLocal),
	}
}

// Connect announces the socket id as the local participant id.
func (s *Service) Connect(api store.API, socketID string) {
	s.localID.Store(socketID)
	s.logger.Debug().Str("sid", socketID).Msg("local participant connected")

	api.Dispatch(action.New(action.UserInitLocalUser, action.InitLocalUserPayload{
		ParticipantID: socketID,
		UserName:      s.userName,
	}))
	api.Dispatch(action.New(action.RoomSocketConnected, action.SocketConnectedPayload{
		SocketID: socketID,
	}))
}

// HandlePeerConnected offers a connection to a newly joined participant.
func (s *Service) HandlePeerConnected(api store.API, data json.RawMessage) {
	var lc wire.PeerLifecycle
	if err := json.Unmarshal(data, &lc); err != nil || lc.ParticipantID == "" {
		s.logger.Error().Err(err).Msg("malformed peer connected message")
		return
	}
	if lc.ParticipantID == s.localID.Load() {
		return
	}
	logger := s.logger.With().Str("peer", lc.ParticipantID).Logger()

	p, created, err := s.peer(api, lc.ParticipantID, true)
	if err != nil {
		logger.Error().Err(err).Msg("cannot create peer connection")
		return
	}
	if created {
		api.Dispatch(action.New(action.ParticipantsAdd, action.ParticipantPayload{
			ParticipantID: lc.ParticipantID,
			UserName:      lc.UserName,
		}))
	}
	s.negotiate(api, p, &logger)
}

// HandlePeerDisconnecting tears down the connection with a leaving participant.
func (s *Service) HandlePeerDisconnecting(api store.API, data json.RawMessage) {
	var lc wire.PeerLifecycle
	if err := json.Unmarshal(data, &lc); err != nil || lc.ParticipantID == "" {
		s.logger.Error().Err(err).Msg("malformed peer disconnecting message")
		return
	}

	s.mx.Lock()
	p, ok := s.peers[lc.ParticipantID]
	delete(s.peers, lc.ParticipantID)
	s.mx.Unlock()

	if ok {
		if err := p.close(); err != nil {
			s.logger.Error().Err(err).Str("peer", lc.ParticipantID).Msg("failed to close peer connection")
		}
	}
	api.Dispatch(action.New(action.ParticipantsRemove, action.ParticipantPayload{
		ParticipantID: lc.ParticipantID,
	}))
}

// HandlePeerMsg applies offers, answers and candidates from remote participants.
func (s *Service) HandlePeerMsg(api store.API, data json.RawMessage) {
	var msg wire.PeerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Error().Err(err).Msg("malformed peer message")
		return
	}
	logger := s.logger.With().Str("peer", msg.From).Str("type", msg.Type).Logger()
	if msg.From == "" {
		logger.Error().Msg("peer message without sender")
		return
	}
	if local := s.localID.Load(); msg.To != "" && msg.To != local {
		logger.Debug().Str("to", msg.To).Msg("peer message is not for us")
		return
	}

	switch msg.Type {
	case wire.PeerMessageOffer:
		p, created, err := s.peer(api, msg.From, false)
		if err != nil {
			logger.Error().Err(err).Msg("cannot create peer connection")
			return
		}
		if created {
			api.Dispatch(action.New(action.ParticipantsAdd, action.ParticipantPayload{ParticipantID: msg.From}))
		}
		answer, err := p.answer(msg.SDP)
		if err != nil {
			logger.Error().Err(err).Msg("cannot answer offer")
			return
		}
		s.send(api, wire.PeerMessage{
			From: s.localID.Load(),
			To:   msg.From,
			Type: wire.PeerMessageAnswer,
			SDP:  answer.SDP,
		})

	case wire.PeerMessageAnswer:
		p, ok := s.existing(msg.From)
		if !ok {
			logger.Error().Err(ErrUnknownPeer).Msg("answer from unknown peer")
			return
		}
		if err := p.applyAnswer(msg.SDP); err != nil {
			logger.Error().Err(err).Msg("cannot apply answer")
		}

	case wire.PeerMessageCandidate:
		p, ok := s.existing(msg.From)
		if !ok {
			logger.Error().Err(ErrUnknownPeer).Msg("candidate from unknown peer")
			return
		}
		var c webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Candidate, &c); err != nil {
			logger.Error().Err(err).Msg("malformed candidate")
			return
		}
		if err := p.addCandidate(c); err != nil {
			logger.Error().Err(err).Msg("cannot add candidate")
		}

	default:
		logger.Warn().Msg("unknown peer message type")
	}
}

// HandleParticipantMsg applies remote participant control messages.
func (s *Service) HandleParticipantMsg(api store.API, data json.RawMessage) {
	var msg wire.ParticipantMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Error().Err(err).Msg("malformed participant message")
		return
	}
	if msg.From == "" || msg.From == s.localID.Load() {
		return
	}
	switch msg.Type {
	case wire.ParticipantMessageSettingDevices:
		var settings action.DeviceSettings
		if err := json.Unmarshal(msg.Settings, &settings); err != nil {
			s.logger.Error().Err(err).Str("peer", msg.From).Msg("malformed device settings")
			return
		}
		api.Dispatch(action.New(action.ParticipantsUpdateSettings, action.ParticipantSettingsPayload{
			ParticipantID: msg.From,
			Settings:      settings,
		}))
	default:
		s.logger.Warn().Str("type", msg.Type).Str("peer", msg.From).Msg("unknown participant message type")
	}
}

// GetUserMedia acquires local tracks and publishes them as the local stream.
func (s *Service) GetUserMedia(api store.API, constraints action.MediaConstraints) {
	streamID, tracks, err := s.source.UserMedia(constraints)
	if err != nil {
		s.logger.Error().Err(err).Msg("cannot get user media")
		return
	}
	s.mx.Lock()
	s.streams[streamID] = tracks
	s.mx.Unlock()

	api.Dispatch(action.New(action.ParticipantsSetStream, action.SetStreamPayload{
		Stream: action.Stream{ID: streamID, Tracks: trackInfo(tracks)},
	}))
}

// SetStream makes stream the local stream and sends its tracks to every peer.
func (s *Service) SetStream(api store.API, stream action.Stream) {
	s.mx.Lock()
	tracks, ok := s.streams[stream.ID]
	if ok {
		s.stream = stream.ID
	}
	peers := s.peerList()
	s.mx.Unlock()

	if !ok {
		s.logger.Error().Err(ErrNoStream).Str("stream", stream.ID).Msg("cannot set stream")
		return
	}
	s.attach(api, peers, tracks)
}

// GetShareScreen adds a screen track to every peer.
func (s *Service) GetShareScreen(api store.API) {
	s.mx.Lock()
	if s.screen != nil {
		s.mx.Unlock()
		return
	}
	screen, err := s.source.ScreenShare(s.stream)
	if err != nil {
		s.mx.Unlock()
		s.logger.Error().Err(err).Msg("cannot share screen")
		return
	}
	s.screen = screen
	peers := s.peerList()
	s.mx.Unlock()

	s.attach(api, peers, []webrtc.TrackLocal{screen})
	s.announceSharing(api, true)
}

// CloseShareScreen removes the screen track from every peer.
func (s *Service) CloseShareScreen(api store.API) {
	s.mx.Lock()
	screen := s.screen
	s.screen = nil
	peers := s.peerList()
	s.mx.Unlock()

	if screen == nil {
		return
	}
	for _, p := range peers {
		changed, err := p.removeTrack(screen.ID())
		if err != nil {
			s.logger.Error().Err(err).Str("peer", p.id).Msg("cannot remove screen track")
			continue
		}
		if changed {
			logger := s.logger.With().Str("peer", p.id).Logger()
			s.negotiate(api, p, &logger)
		}
	}
	s.announceSharing(api, false)
}

// Close closes every peer connection.
func (s *Service) Close() error {
	s.mx.Lock()
	peers := s.peerList()
	s.peers = make(map[string]*peer)
	s.mx.Unlock()

	var errs []error
	for _, p := range peers {
		errs = append(errs, p.close())
	}
	return errors.Join(errs...)
}

// Peers returns ids of connected remote participants.
func (s *Service) Peers() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	ids := make([]string, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) announceSharing(api store.API, sharing bool) {
	settings := api.GetState().Participants.LocalSettings
	settings.SharingScreen = sharing
	api.Dispatch(action.New(action.ParticipantsSetLocalSettingSharingScreen, action.LocalSettingPayload{
		ParticipantID: s.localID.Load(),
		Settings:      settings,
	}))
}

func (s *Service) attach(api store.API, peers []*peer, tracks []webrtc.TrackLocal) {
	for _, p := range peers {
		changed, err := p.addTracks(tracks)
		if err != nil {
			s.logger.Error().Err(err).Str("peer", p.id).Msg("cannot add tracks")
			continue
		}
		if changed {
			logger := s.logger.With().Str("peer", p.id).Logger()
			s.negotiate(api, p, &logger)
		}
	}
}

func (s *Service) negotiate(api store.API, p *peer, logger *zerolog.Logger) {
	offer, err := p.offer()
	if err != nil {
		logger.Error().Err(err).Msg("cannot create offer")
		return
	}
	s.send(api, wire.PeerMessage{
		From: s.localID.Load(),
		To:   p.id,
		Type: wire.PeerMessageOffer,
		SDP:  offer.SDP,
	})
}

// send hands a peer message to the room middleware, which emits it on peer:msg.
func (s *Service) send(api store.API, msg wire.PeerMessage) {
	api.Dispatch(action.New(action.RoomSocketMsg, action.SocketMsgPayload{Data: msg}))
}

func (s *Service) existing(id string) (*peer, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	p, ok := s.peers[id]
	return p, ok
}

func (s *Service) peerList() []*peer {
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	return peers
}

// peer returns the connection with id, creating it with the current local tracks when missing.
func (s *Service) peer(api store.API, id string, offering bool) (*peer, bool, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if p, ok := s.peers[id]; ok {
		return p, false, nil
	}

	pc, err := webrtc.NewPeerConnection(s.rtcConfig)
	if err != nil {
		return nil, false, err
	}
	p := newPeer(id, pc)
	logger := s.logger.With().Str("peer", id).Logger()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			logger.Error().Err(err).Msg("cannot marshal candidate")
			return
		}
		s.send(api, wire.PeerMessage{
			From:      s.localID.Load(),
			To:        id,
			Type:      wire.PeerMessageCandidate,
			Candidate: b,
		})
	})
	pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Debug().Str("track", tr.ID()).Str("kind", tr.Kind().String()).Msg("remote track")
		api.Dispatch(action.New(action.ParticipantsAddRemoteTrack, action.RemoteTrackPayload{
			ParticipantID: id,
			StreamID:      tr.StreamID(),
			Track:         action.TrackInfo{ID: tr.ID(), Kind: tr.Kind().String()},
		}))
		go func() {
			for {
				if _, _, err := tr.ReadRTP(); err != nil {
					return
				}
			}
		}()
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		logger.Debug().Str("state", st.String()).Msg("peer connection state changed")
	})

	if offering {
		if _, err = pc.CreateDataChannel(dataChannelLabel, nil); err != nil {
			_ = pc.Close()
			return nil, false, err
		}
	}

	var tracks []webrtc.TrackLocal
	tracks = append(tracks, s.streams[s.stream]...)
	if s.screen != nil {
		tracks = append(tracks, s.screen)
	}
	if _, err = p.addTracks(tracks); err != nil {
		_ = pc.Close()
		return nil, false, err
	}

	s.peers[id] = p
	return p, true, nil
}
