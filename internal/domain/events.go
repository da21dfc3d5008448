package domain

// EventType names a real-time event relayed to a match room.
type EventType string

const (
	EventPlayerJoined    EventType = "player_joined"
	EventAnswerSubmitted EventType = "answer_submitted"
	EventMatchCompleted  EventType = "match_completed"
)

// Event is broadcast to every subscriber of Room except ExcludeUser.
type Event struct {
	Type        EventType `json:"type"`
	Room        string    `json:"room"`
	Payload     any       `json:"payload"`
	ExcludeUser string    `json:"excludeUser,omitempty"`
}

// PlayerJoinedPayload announces the second player to the creator.
type PlayerJoinedPayload struct {
	RoomCode   string `json:"roomCode"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// AnswerSubmittedPayload tells the room a player answered without revealing
// the answer text.
type AnswerSubmittedPayload struct {
	RoomCode        string     `json:"roomCode"`
	MatchQuestionID string     `json:"matchQuestionId"`
	Player          PlayerSlot `json:"player"`
	Correct         bool       `json:"correct"`
}
