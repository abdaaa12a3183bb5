package events

const (
	TopicConnStatus       = "conn.status"
	TopicMessageConfirmed = "chat.message.confirmed"
	TopicHistoryLoaded    = "chat.history.loaded"
	TopicUnread           = "notify.unread"
	TopicGroupsChanged    = "groups.changed"
)
