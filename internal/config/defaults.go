package config

const (
	defaultBaseDir            = "~/.local/share/papermill/pipeline"
	defaultLogDir             = "~/.local/share/papermill/logs"
	defaultSourceBaseURL      = "https://archive.org"
	defaultRequestTimeout     = 120
	defaultMaxAttempts        = 4
	defaultDelayMS            = 50
	defaultDiskThreshold      = 0.90
	defaultDiskPauseInterval  = 30
	defaultFetchPollInterval  = 5
	defaultSizeThreshold      = 1000
	defaultItemSize           = 25
	defaultSubmitAttempts     = 3
	defaultBatchPollInterval  = 60
	defaultCollectInterval    = 60
	defaultFinalizeInterval   = 60
	defaultSubmitCommand      = "sbatch-ocr"
	defaultStatusCommand      = "sacct"
	defaultCancelCommand      = "scancel"
	defaultCommandTimeout     = 60
	defaultRestartLimit       = 3
	defaultErrorRetryInterval = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			BaseDir: defaultBaseDir,
			LogDir:  defaultLogDir,
		},
		Fetch: Fetch{
			SourceBaseURL:     defaultSourceBaseURL,
			RequestTimeout:    defaultRequestTimeout,
			MaxAttempts:       defaultMaxAttempts,
			DelayMS:           defaultDelayMS,
			DiskThreshold:     defaultDiskThreshold,
			DiskPauseInterval: defaultDiskPauseInterval,
			PollInterval:      defaultFetchPollInterval,
		},
		Batch: Batch{
			SizeThreshold:  defaultSizeThreshold,
			DefaultSize:    defaultItemSize,
			SubmitAttempts: defaultSubmitAttempts,
			PollInterval:   defaultBatchPollInterval,
		},
		Collect: Collect{
			PollInterval: defaultCollectInterval,
		},
		Finalize: Finalize{
			PollInterval: defaultFinalizeInterval,
		},
		Scheduler: Scheduler{
			SubmitCommand:  defaultSubmitCommand,
			StatusCommand:  defaultStatusCommand,
			CancelCommand:  defaultCancelCommand,
			CommandTimeout: defaultCommandTimeout,
		},
		Workflow: Workflow{
			RestartLimit:       defaultRestartLimit,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
