package config

const (
	defaultDataDir                = "~/.local/share/medley/data"
	defaultLogDir                 = "~/.local/share/medley/logs"
	defaultAPIBind                = "127.0.0.1:7519"
	defaultAllowedOrigin          = "*"
	defaultStoreBackend           = "sqlite"
	defaultStoreTableName         = "medley-jobs"
	defaultStoreOperationIndex    = "operation-index"
	defaultContentBackend         = "fs"
	defaultContentBucket          = "medley-media"
	defaultRawPrefix              = "raw-media"
	defaultWorkingPrefix          = "processed-media"
	defaultOutputPrefix           = "analysis-output"
	defaultTranscriptPrefix       = "transcripts"
	defaultCallbackBackend        = "local"
	defaultResolverMaxAttempts    = 5
	defaultResolverInitialDelayMS = 500
	defaultResolverMaxDelayMS     = 8000
	defaultPollInterval           = 2
	defaultErrorRetryInterval     = 10
	defaultSuspendTimeout         = 900
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:       defaultDataDir,
			LogDir:        defaultLogDir,
			APIBind:       defaultAPIBind,
			AllowedOrigin: defaultAllowedOrigin,
		},
		Store: Store{
			Backend:        defaultStoreBackend,
			TableName:      defaultStoreTableName,
			OperationIndex: defaultStoreOperationIndex,
		},
		Content: Content{
			Backend:          defaultContentBackend,
			Bucket:           defaultContentBucket,
			RawPrefix:        defaultRawPrefix,
			WorkingPrefix:    defaultWorkingPrefix,
			OutputPrefix:     defaultOutputPrefix,
			TranscriptPrefix: defaultTranscriptPrefix,
		},
		Callback: Callback{
			Backend: defaultCallbackBackend,
		},
		Resolver: Resolver{
			MaxAttempts:    defaultResolverMaxAttempts,
			InitialDelayMS: defaultResolverInitialDelayMS,
			MaxDelayMS:     defaultResolverMaxDelayMS,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			SuspendTimeout:     defaultSuspendTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
