package config

const (
	defaultStateDir              = "~/.local/share/herald"
	defaultLogDir                = "~/.local/share/herald/logs"
	defaultAPIBind               = "127.0.0.1:7489"
	defaultStoreBackend          = StoreBackendFile
	defaultDocumentName          = "scheduled_posts.json"
	defaultSQLiteName            = "queue.db"
	defaultCommitMessage         = "Updated posts via Scheduler"
	defaultGitHubBaseURL         = "https://api.github.com"
	defaultGitHubTimeoutSeconds  = 30
	defaultPDSURL                = "https://bsky.social"
	defaultThreadPauseMillis     = 2000
	defaultPlatformTimeout       = 30
	defaultSchedulerInterval     = 300
	defaultRunTimeoutSeconds     = 300
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "google/gemini-3-flash-preview"
	defaultLLMReferer            = "https://github.com/herald-scheduler/herald"
	defaultLLMTitle              = "Herald Drafts"
	defaultLLMTimeoutSeconds     = 60
	defaultJetstreamURL          = "wss://jetstream2.us-east.bsky.network/subscribe"
	defaultFeedMaxItems          = 10
	defaultFeedTimeoutSeconds    = 20
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultConflictRetry         = true
	defaultWatchFile             = true
	defaultNotifyRunSummary      = true
	defaultNotifyErrors          = true
	defaultNotifySummaryMinPosts = 1
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Store: Store{
			Backend:       defaultStoreBackend,
			CommitMessage: defaultCommitMessage,
		},
		GitHub: GitHub{
			BaseURL:        defaultGitHubBaseURL,
			TimeoutSeconds: defaultGitHubTimeoutSeconds,
		},
		Platform: Platform{
			PDSURL:                defaultPDSURL,
			ThreadPauseMillis:     defaultThreadPauseMillis,
			RequestTimeoutSeconds: defaultPlatformTimeout,
		},
		Scheduler: Scheduler{
			IntervalSeconds:   defaultSchedulerInterval,
			RunTimeoutSeconds: defaultRunTimeoutSeconds,
			ConflictRetry:     defaultConflictRetry,
			WatchFile:         defaultWatchFile,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Feeds: Feeds{
			JetstreamURL:   defaultJetstreamURL,
			MaxItems:       defaultFeedMaxItems,
			TimeoutSeconds: defaultFeedTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout:  defaultNotifyRequestTimeout,
			RunSummary:      defaultNotifyRunSummary,
			Errors:          defaultNotifyErrors,
			SummaryMinPosts: defaultNotifySummaryMinPosts,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
