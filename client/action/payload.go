package action

type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusSuccess MessageStatus = "success"
)

// ChatMessage is a message as kept in the client state.
type ChatMessage struct {
	UniqueID      string        `json:"uniqueId,omitempty"`
	DateCreated   string        `json:"dateCreated,omitempty"`
	Me            bool          `json:"me"`
	Status        MessageStatus `json:"status,omitempty"`
	Text          string        `json:"text"`
	UserName      string        `json:"userName,omitempty"`
	ParticipantID string        `json:"participantId,omitempty"`
}

type (
	ConnectSocketPayload struct {
		RoomName string `json:"roomName,omitempty"`
	}

	SocketConnectedPayload struct {
		SocketID string `json:"socketId"`
	}

	RoomConfigPayload struct {
		HasPassword bool `json:"hasPassword"`
	}

	PasswordPayload struct {
		Password string `json:"password"`
	}

	LoginFailPayload struct {
		MessageError string `json:"messageError"`
	}

	JoinRoomPayload struct {
		RoomName string `json:"roomName"`
	}

	// SocketMsgPayload wraps an opaque signaling body to be emitted as is.
	SocketMsgPayload struct {
		Data any `json:"data"`
	}
)

type (
	MessageSuccessPayload struct {
		UniqueID    string `json:"uniqueId"`
		DateCreated string `json:"dateCreated"`
	}

	ListMessagesPayload struct {
		ListMessages []ChatMessage `json:"listMessages"`
	}
)

type (
	MediaConstraints struct {
		Audio bool `json:"audio"`
		Video bool `json:"video"`
	}

	GetUserMediaPayload struct {
		Constraints MediaConstraints `json:"constrains"`
	}

	TrackInfo struct {
		ID   string `json:"id"`
		Kind string `json:"kind"`
	}

	// Stream describes a local media stream; the tracks themselves stay with the signaling service.
	Stream struct {
		ID     string      `json:"id"`
		Tracks []TrackInfo `json:"tracks"`
	}

	SetStreamPayload struct {
		Stream Stream `json:"stream"`
	}

	DeviceSettings struct {
		Audio         bool `json:"audio"`
		Video         bool `json:"video"`
		SharingScreen bool `json:"sharingScreen"`
	}

	LocalSettingPayload struct {
		ParticipantID string         `json:"participantId"`
		Settings      DeviceSettings `json:"settings"`
	}

	ParticipantPayload struct {
		ParticipantID string `json:"participantId"`
		UserName      string `json:"userName,omitempty"`
	}

	ParticipantSettingsPayload struct {
		ParticipantID string         `json:"participantId"`
		Settings      DeviceSettings `json:"settings"`
	}

	RemoteTrackPayload struct {
		ParticipantID string    `json:"participantId"`
		StreamID      string    `json:"streamId"`
		Track         TrackInfo `json:"track"`
	}
)

type (
	InitLocalUserPayload struct {
		ParticipantID string `json:"participantId"`
		UserName      string `json:"userName,omitempty"`
	}

	LocationChangePayload struct {
		Pathname string `json:"pathname"`
	}

	TokenPayload struct {
		Token string `json:"token"`
	}
)
