package config

const (
	defaultConfigPath      = "~/.config/vidscribe/config.toml"
	defaultStateDir        = "~/.local/share/vidscribe"
	defaultLogDir          = "~/.local/share/vidscribe/logs"
	defaultInterpreter     = "python3"
	defaultScriptsDir      = "~/.local/share/vidscribe/worker"
	defaultBatchScript     = "batch_processor.py"
	defaultVerifyScript    = "verify_model.py"
	defaultDownloadScript  = "download_model.py"
	defaultSearchScript    = "search_handler.py"
	defaultModel           = "base"
	defaultFormat          = FormatTXT
	defaultMP3Bitrate      = "128k"
	defaultModelCacheDir   = "~/.cache/whisper"
	defaultEmbedder        = EmbedderHash
	defaultDimensions      = 256
	defaultTopK            = 5
	defaultThreshold       = 0.3
	defaultAskTopN         = 8
	defaultLLMTimeout      = 60
	defaultLLMReferer      = "https://github.com/vidscribe/vidscribe"
	defaultLLMTitle        = "vidscribe"
	defaultServerBind      = "127.0.0.1:7488"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	minEmbeddingDimensions = 16
)

// Output formats accepted by the batch worker.
const (
	FormatTXT  = "txt"
	FormatMD   = "md"
	FormatBoth = "both"
)

// Embedders available for semantic search.
const (
	EmbedderHash   = "hash"
	EmbedderWorker = "worker"
)

// Synthesis providers.
const (
	ProviderNone       = "none"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderClaude     = "claude"
	ProviderGemini     = "gemini"
)

// SupportedModels lists the transcription model identifiers the worker accepts.
var SupportedModels = []string{"tiny", "base", "small", "medium", "large"}

var providerBaseURLs = map[string]string{
	ProviderOpenAI:     "https://api.openai.com/v1/chat/completions",
	ProviderOpenRouter: "https://openrouter.ai/api/v1/chat/completions",
	ProviderOllama:     "http://localhost:11434/v1/chat/completions",
	ProviderClaude:     "https://api.anthropic.com/v1/chat/completions",
}

var providerModels = map[string]string{
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderOpenRouter: "google/gemini-2.5-flash",
	ProviderOllama:     "llama3.1",
	ProviderClaude:     "claude-sonnet-4-5",
	ProviderGemini:     "gemini-2.5-flash",
}

var providerKeyEnv = map[string][]string{
	ProviderOpenAI:     {"OPENAI_API_KEY"},
	ProviderOpenRouter: {"OPENROUTER_API_KEY"},
	ProviderClaude:     {"ANTHROPIC_API_KEY"},
	ProviderGemini:     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Worker: Worker{
			Interpreter:     defaultInterpreter,
			InterpreterArgs: []string{"-u"},
			ScriptsDir:      defaultScriptsDir,
			BatchScript:     defaultBatchScript,
			VerifyScript:    defaultVerifyScript,
			DownloadScript:  defaultDownloadScript,
			SearchScript:    defaultSearchScript,
		},
		Transcription: Transcription{
			Model:         defaultModel,
			Format:        defaultFormat,
			MP3Bitrate:    defaultMP3Bitrate,
			ModelCacheDir: defaultModelCacheDir,
		},
		Retrieval: Retrieval{
			Embedder:        defaultEmbedder,
			Dimensions:      defaultDimensions,
			TopK:            defaultTopK,
			Threshold:       defaultThreshold,
			AskTopN:         defaultAskTopN,
			CacheEmbeddings: true,
		},
		LLM: LLM{
			Provider:       ProviderNone,
			TimeoutSeconds: defaultLLMTimeout,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
		},
		Server: Server{
			Bind: defaultServerBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
