package dto

// Event is the envelope every outgoing archive event is wrapped in.
type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id         string      `json:"id"`
	EntityId   string      `json:"entityId"`
	EntityType string      `json:"entityType"`
	EventType  string      `json:"eventType"`
	Data       interface{} `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uberTraceId"`
	MailboxId   string `json:"mailboxId"`
	Timestamp   string `json:"timestamp"`
}

// MessageArchived is emitted after a message has been written to durable
// storage and indexed.
type MessageArchived struct {
	MessageId         string `json:"messageId"`
	ImmutableId       string `json:"immutableId"`
	FolderPath        string `json:"folderPath"`
	ArtifactPath      string `json:"artifactPath"`
	Subject           string `json:"subject"`
	Sender            string `json:"sender"`
	ReceivedAt        string `json:"receivedAt"`
	Size              int64  `json:"size"`
	InternetMessageId string `json:"internetMessageId"`
}
