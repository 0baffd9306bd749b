package nakama

const (
	// RpcQuickMatch is the Nakama RPC id clients call to find or create a lobby-capable match.
	RpcQuickMatch = "quick_match"

	// RpcVoiceToken is the Nakama RPC id clients call to obtain a voice channel token.
	RpcVoiceToken = "voice_token"

	// MatchNameKaboom is the authoritative match handler name registered with Nakama.
	MatchNameKaboom = "kaboom_match"
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpStartGame     int64 = 1
	OpDrawCard      int64 = 2
	OpPlayCard      int64 = 3
	OpPlayPair      int64 = 4
	OpPlayNope      int64 = 5
	OpResolveAction int64 = 6
	OpSubmitDefuse  int64 = 7
	OpGiveCard      int64 = 8

	// Server -> Client events
	OpStateSnapshot  int64 = 101
	OpGameStarted    int64 = 102
	OpHandDealt      int64 = 103 // send privately
	OpCardDrawn      int64 = 104
	OpCardReceived   int64 = 105 // send privately
	OpDefuseNeeded   int64 = 106
	OpBombDefused    int64 = 107
	OpPlayerExploded int64 = 108
	OpTurnChanged    int64 = 109
	OpActionPending  int64 = 110
	OpActionResolved int64 = 111
	OpActionNoped    int64 = 112
	OpDeckShuffled   int64 = 113
	OpFutureSeen     int64 = 114 // send privately
	OpFavorRequested int64 = 115
	OpCardGiven      int64 = 116
	OpCardStolen     int64 = 117
	OpStolenCard     int64 = 118 // send privately to thief and victim
	OpPlayerLeftGame int64 = 119
	OpGameEnded      int64 = 120
	OpRoomAbandoned  int64 = 121
	OpGameError      int64 = 122
)
