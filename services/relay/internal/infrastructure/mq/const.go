package mq

const (
	TopicRelay  = "chat_relay_topic"
	TagRelayJob = "relay_job"
)
