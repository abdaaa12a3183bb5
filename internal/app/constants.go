package app

const (
	Name               = "eatup"
	ConfigFilename     = "config.json"
	DBFilename         = "cache.db"
	LogFilename        = "eatup.log"
	RecentMessagesLoad = 200
)
