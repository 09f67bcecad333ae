package common

const (
	RedisStreamCrawlRunCompleted = "crawler.run.completed"
	RedisKeyCrawlRunLock         = "crawler:run:lock"

	CrawlTriggerHTTP     = "http"
	CrawlTriggerSchedule = "schedule"
	CrawlTriggerCLI      = "cli"
)
