package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/config"
	"github.com/mikey/llm-email-classifier/internal/core"
	"github.com/mikey/llm-email-classifier/internal/factory"
	"github.com/mikey/llm-email-classifier/internal/logging"
	"github.com/mikey/llm-email-classifier/internal/taxonomy"
)

var (
	// LLM provider flags
	provider  = flag.String("provider", "openai", "LLM provider (openai, gemini, bedrock)")
	modelName = flag.String("model", "", "Model name override for the selected provider")

	// API key flags
	openaiAPIKey = flag.String("openai-api-key", "", "API key for OpenAI")
	geminiAPIKey = flag.String("gemini-api-key", "", "API key for Google Gemini")

	// Classification flags
	taxonomyPath = flag.String("taxonomy", "./configs/request_types.json", "Path to the request type taxonomy JSON file")
	threadID     = flag.String("thread-id", "", "Thread ID for duplicate detection")

	// Input flags
	inputFile  = flag.String("file", "", "Input email file in RFC 822 format (use stdin if not specified)")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration from file or build it from flags
	var cfg *config.Config
	if *configFile != "" {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		cfg = createConfigFromFlags()
	}

	// Build the API key pool
	poolFactory := factory.NewKeyPoolFactory(cfg, logger)
	pool, err := poolFactory.CreateKeyPool()
	if err != nil {
		logger.Fatal("Failed to build API key pool", zap.Error(err))
	}

	// Create LLM clients
	llmFactory := factory.NewLLMFactory(cfg, pool, logger)
	classifierClient, err := llmFactory.CreateClassificationClient()
	if err != nil {
		logger.Fatal("Failed to create classification client", zap.Error(err))
	}
	extractionClient, err := llmFactory.CreateExtractionClient()
	if err != nil {
		logger.Fatal("Failed to create extraction client", zap.Error(err))
	}

	// Create the remaining pipeline components
	embeddingFactory := factory.NewEmbeddingFactory(cfg, pool, logger)
	embedder, err := embeddingFactory.CreateEmbeddingProvider()
	if err != nil {
		logger.Fatal("Failed to create embedding provider", zap.Error(err))
	}

	dupCache := factory.NewCacheFactory(cfg, logger).CreateDuplicateCache()

	extractor, err := factory.NewExtractorFactory(cfg, logger).CreateExtractor(extractionClient)
	if err != nil {
		logger.Fatal("Failed to create field extractor", zap.Error(err))
	}

	analyticsSink, err := factory.NewAnalyticsFactory(cfg, logger).CreateAnalyticsSink()
	if err != nil {
		logger.Fatal("Failed to create analytics sink", zap.Error(err))
	}
	defer analyticsSink.Stop()

	taxonomyProvider := taxonomy.NewFileProvider(cfg.GetString("taxonomy.path"), logger)

	service := core.NewClassifierService(
		classifierClient,
		embedder,
		dupCache,
		extractor,
		taxonomyProvider,
		analyticsSink,
		logger,
	)

	// Read email from file or stdin
	var emailReader io.Reader
	if *inputFile != "" {
		file, err := os.Open(*inputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", *inputFile))
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", *inputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	email, err := parseEmail(emailReader)
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}
	email.Source = "cli"
	if *threadID != "" {
		email.ThreadID = *threadID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := service.ProcessEmail(ctx, email)
	if err != nil {
		logger.Fatal("Failed to classify email", zap.Error(err))
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal("Failed to encode result", zap.Error(err))
	}
	fmt.Println(string(output))
}

// parseEmail reads an RFC 822 message into the pipeline's email shape.
func parseEmail(r io.Reader) (*core.InboundEmail, error) {
	msg, err := mail.ReadMessage(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}

	email := &core.InboundEmail{
		Sender:    parseAddress(msg.Header.Get("From")),
		Recipient: parseAddress(msg.Header.Get("To")),
		Subject:   msg.Header.Get("Subject"),
		Body:      string(body),
		MessageID: strings.Trim(msg.Header.Get("Message-ID"), "<> "),
		InReplyTo: strings.Trim(msg.Header.Get("In-Reply-To"), "<> "),
	}
	if refs := msg.Header.Get("References"); refs != "" {
		for _, ref := range strings.Fields(refs) {
			email.References = append(email.References, strings.Trim(ref, "<> "))
		}
	}
	if date, err := msg.Header.Date(); err == nil {
		email.ReceivedAt = date
	}
	return email, nil
}

func parseAddress(value string) string {
	if value == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(value); err == nil {
		return addr.Address
	}
	return value
}

// createConfigFromFlags builds a configuration from command line flags.
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	v.Set("llm.classification_provider", *provider)
	v.Set("llm.extraction_provider", *provider)
	v.Set("taxonomy.path", *taxonomyPath)

	if *modelName != "" {
		switch *provider {
		case "openai":
			v.Set("openai.model_name", *modelName)
		case "gemini":
			v.Set("gemini.model_name", *modelName)
		case "bedrock":
			v.Set("bedrock.model_id", *modelName)
		}
	}

	keys := map[string][]map[string]interface{}{}
	if *openaiAPIKey != "" {
		keys["openai"] = []map[string]interface{}{
			{"key": *openaiAPIKey, "call_limit": 1000, "period_minutes": 60},
		}
	}
	if *geminiAPIKey != "" {
		keys["gemini"] = []map[string]interface{}{
			{"key": *geminiAPIKey, "call_limit": 1000, "period_minutes": 60},
		}
	}
	if len(keys) > 0 {
		v.Set("keys", keys)
	}

	return config.NewFromViper(v)
}
