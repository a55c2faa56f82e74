package action

const (
	PrefixRoom         = "room.actions"
	PrefixChat         = "chat.actions"
	PrefixParticipants = "participants.actions"
	PrefixUser         = "user.actions"
	PrefixRouter       = "router.actions"
	PrefixAuth         = "auth.actions"
)

var (
	roomType         = MakeActionsType(PrefixRoom)
	chatType         = MakeActionsType(PrefixChat)
	participantsType = MakeActionsType(PrefixParticipants)
	userType         = MakeActionsType(PrefixUser)
	routerType       = MakeActionsType(PrefixRouter)
	authType         = MakeActionsType(PrefixAuth)
)

// Room actions.
var (
	RoomConnectSocket      = roomType("CONNECT_SOCKET")
	RoomSocketConnected    = roomType("SOCKET_CONNECTED")
	RoomConfig             = roomType("ROOM_CONFIG")
	RoomSetPassword        = roomType("SET_PASSWORD")
	RoomLogin              = roomType("LOGIN_ROOM")
	RoomLoginSuccess       = roomType("LOGIN_SUCCESS")
	RoomLoginFail          = roomType("LOGIN_FAIL")
	RoomSendUpdatePassword = roomType("SEND_UPDATE_PASSWORD")
	RoomUpdatePassword     = roomType("UPDATE_PASSWORD")
	RoomJoin               = roomType("JOIN_ROOM")
	RoomLeave              = roomType("LEAVE_ROOM")
	RoomSocketMsg          = roomType("SOCKET_MSG")
)

// Chat actions.
var (
	ChatSendMessage    = chatType("SEND_MESSAGE")
	ChatMessageSuccess = chatType("MESSAGE_SUCCESS")
	ChatReceiveMessage = chatType("RECEIVE_MESSAGE")
	ChatListMessages   = chatType("LIST_MESSAGES")
)

// Participants actions.
var (
	ParticipantsGetUserMedia                 = participantsType("GET_USER_MEDIA")
	ParticipantsGetShareScreen               = participantsType("GET_SHARE_SCREEN")
	ParticipantsSetStream                    = participantsType("SET_STREAM")
	ParticipantsCloseShareScreen             = participantsType("CLOSE_SHARE_SCREEN")
	ParticipantsSetLocalSettingDevices       = participantsType("SET_LOCAL_SETTING_DEVICES")
	ParticipantsSetLocalSettingSharingScreen = participantsType("SET_LOCAL_SETTING_SHARING_SCREEN")
	ParticipantsSocketMsg                    = participantsType("SOCKET_MSG")
	ParticipantsAdd                          = participantsType("ADD_PARTICIPANT")
	ParticipantsRemove                       = participantsType("REMOVE_PARTICIPANT")
	ParticipantsUpdateSettings               = participantsType("UPDATE_PARTICIPANT_SETTINGS")
	ParticipantsAddRemoteTrack               = participantsType("ADD_REMOTE_TRACK")
)

var (
	UserInitLocalUser    = userType("INIT_LOCAL_USER")
	RouterLocationChange = routerType("LOCATION_CHANGE")
	AuthSetToken         = authType("SET_TOKEN")
)
