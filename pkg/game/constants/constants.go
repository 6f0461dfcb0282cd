package constants

import "time"

const (
	// GameServerHost is the default interface the broker listens on
	GameServerHost string = "127.0.0.1"
	// GameServerPort is the default port the broker listens on
	GameServerPort int = 8191

	// TickInterval is the reference interval between two ticks of a game session
	TickInterval time.Duration = 100 * time.Millisecond
	// MatchInterval is the reference interval between two matchmaking polls
	MatchInterval time.Duration = 100 * time.Millisecond
	// MaxGameDuration bounds the lifetime of a single game session
	MaxGameDuration time.Duration = 10 * time.Minute
	// AbandonAfterTicks is the number of consecutive ticks without any
	// connected participant after which a session is ended
	AbandonAfterTicks int = 50

	// PlayersPerGame is the number of participants in a 1v1 game
	PlayersPerGame int = 2

	// OutboundBufferSize is the capacity of a connection's delivery channel
	OutboundBufferSize int = 64
	// WriteTimeout bounds a single websocket frame write
	WriteTimeout time.Duration = 5 * time.Second

	// RaceTarget is the score that wins a PressRace game
	RaceTarget int = 10
)
