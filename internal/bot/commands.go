package bot

// Chat commands understood by the bot.
const (
	CommandStart  = "/start"
	CommandStatus = "/status"
	CommandUnlink = "/unlink"
)
