package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and saves the result
// to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to econsult! Let's configure the search service.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. LLM provider.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"azure", "openai", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)
	model, embeddingModel, dims := PresetModels(provider)
	cfg.LLM.Provider = provider
	cfg.LLM.Model = model
	cfg.Embedding.Provider = provider
	cfg.Embedding.Model = embeddingModel
	cfg.Embedding.Dimensions = dims

	// 2. Azure endpoint and deployment.
	if provider == ProviderAzure {
		endpoint, err := (&promptui.Prompt{
			Label:    "Azure OpenAI endpoint",
			Default:  os.Getenv("AZURE_ENDPOINT"),
			Validate: required,
		}).Run()
		if err != nil {
			return nil, fmt.Errorf("azure endpoint: %w", err)
		}
		deployment, err := (&promptui.Prompt{
			Label:   "Azure deployment name",
			Default: model,
		}).Run()
		if err != nil {
			return nil, fmt.Errorf("azure deployment: %w", err)
		}
		cfg.LLM.Endpoint = endpoint
		cfg.LLM.Deployment = deployment
	}

	// 3. Vector backend.
	backendPrompt := promptui.Select{
		Label: "Select vector store",
		Items: []string{
			"chromem (local, file-backed)",
			"mongo (MongoDB Atlas $vectorSearch)",
		},
	}
	backendIdx, _, err := backendPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("vector backend: %w", err)
	}
	if backendIdx == 1 {
		cfg.Vector.Backend = BackendMongo
		uri, err := (&promptui.Prompt{
			Label:   "MongoDB URI (leave blank to read MONGODB_URI)",
			Default: "",
		}).Run()
		if err != nil {
			return nil, fmt.Errorf("mongo uri: %w", err)
		}
		cfg.Vector.MongoURI = uri
	}

	// 4. Port.
	portStr, err := (&promptui.Prompt{
		Label:    "HTTP port",
		Default:  strconv.Itoa(cfg.Server.Port),
		Validate: validPort,
	}).Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	cfg.Server.Port, _ = strconv.Atoi(portStr)
	cfg.Eureka.InstancePort = cfg.Server.Port

	// 5. Allowed origins.
	originsStr, err := (&promptui.Prompt{
		Label:   "Allowed CORS origins (comma-separated)",
		Default: "*",
	}).Run()
	if err != nil {
		return nil, fmt.Errorf("allowed origins: %w", err)
	}
	cfg.Server.AllowedOrigins = splitAndTrim(originsStr)

	// 6. Eureka.
	eurekaPrompt := promptui.Select{
		Label: "Register with Eureka?",
		Items: []string{"no", "yes"},
	}
	eurekaIdx, _, err := eurekaPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("eureka selection: %w", err)
	}
	if eurekaIdx == 1 {
		cfg.Eureka.Enabled = true
		serverURL, err := (&promptui.Prompt{
			Label:   "Eureka server URL",
			Default: cfg.Eureka.ServerURL,
		}).Run()
		if err != nil {
			return nil, fmt.Errorf("eureka url: %w", err)
		}
		cfg.Eureka.ServerURL = serverURL
	}

	if envVar := APIKeyEnvVar(provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment before running econsult serve.\n", envVar)
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("value is required")
	}
	return nil
}

func validPort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
