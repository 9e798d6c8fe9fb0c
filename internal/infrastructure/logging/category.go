package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	Bus             Category = "Bus"
	Audio           Category = "Audio"
	Rooms           Category = "Rooms"
	Lifecycle       Category = "Lifecycle"
	Mongo           Category = "Mongo"
	Validation      Category = "Validation"
	RequestResponse Category = "RequestResponse"
)

const (
	// General
	Startup         SubCategory = "Startup"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"

	// Bus
	Publish     SubCategory = "Publish"
	Subscribe   SubCategory = "Subscribe"
	Unsubscribe SubCategory = "Unsubscribe"

	// Audio
	Synthesis SubCategory = "Synthesis"
	Playback  SubCategory = "Playback"

	// Rooms / Lifecycle
	Membership SubCategory = "Membership"
	Eviction   SubCategory = "Eviction"
	Heartbeat  SubCategory = "Heartbeat"
)

const (
	AppName       ExtraKey = "AppName"
	LoggerName    ExtraKey = "Logger"
	RoomID        ExtraKey = "RoomId"
	ParticipantID ExtraKey = "ParticipantId"
	SessionID     ExtraKey = "SessionId"
	Pitch         ExtraKey = "Pitch"
	InstrumentKey ExtraKey = "Instrument"
	AgeMs         ExtraKey = "AgeMs"
	Method        ExtraKey = "Method"
	StatusCode    ExtraKey = "StatusCode"
	Path          ExtraKey = "Path"
	Latency       ExtraKey = "Latency"
	ErrorMessage  ExtraKey = "ErrorMessage"
)
