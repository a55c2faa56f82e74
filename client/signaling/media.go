package signaling

import (
	"errors"

	"github.com/adwski/meeting-room/client/action"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

var ErrNoMedia = errors.New("no media requested")

// MediaSource provides local tracks.
type MediaSource interface {
	UserMedia(constraints action.MediaConstraints) (streamID string, tracks []webrtc.TrackLocal, err error)
	ScreenShare(streamID string) (webrtc.TrackLocal, error)
}

// StaticSource creates sample based tracks which a caller can feed with webrtc.TrackLocalStaticSample.WriteSample.
type StaticSource struct{}

func (StaticSource) UserMedia(c action.MediaConstraints) (string, []webrtc.TrackLocal, error) {
	if !c.Audio && !c.Video {
		return "", nil, ErrNoMedia
	}
	streamID := uuid.NewString()
	var tracks []webrtc.TrackLocal
	if c.Audio {
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
		if err != nil {
			return "", nil, err
		}
		tracks = append(tracks, audio)
	}
	if c.Video {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
		if err != nil {
			return "", nil, err
		}
		tracks = append(tracks, video)
	}
	return streamID, tracks, nil
}

func (StaticSource) ScreenShare(streamID string) (webrtc.TrackLocal, error) {
	if streamID == "" {
		streamID = uuid.NewString()
	}
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "screen", streamID)
}

func trackInfo(tracks []webrtc.TrackLocal) []action.TrackInfo {
	out := make([]action.TrackInfo, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, action.TrackInfo{ID: t.ID(), Kind: t.Kind().String()})
	}
	return out
}
