package config

import "fmt"

// ProviderSettings 返回 provider 对应的连接信息
func (c *AIConfig) ProviderSettings(provider string) ProviderConfig {
	switch provider {
	case "deepseek":
		return c.DeepSeek
	case "openai":
		return c.OpenAI
	case "gemini":
		return c.Gemini
	case "local-llm":
		return c.LocalLLM
	default:
		return ProviderConfig{}
	}
}

// APIKey 获取 provider 的 API Key，本地模型不需要
func (c *AIConfig) APIKey(provider string) (string, error) {
	var env string
	switch provider {
	case "deepseek":
		env = "DEEPSEEK_API_KEY"
	case "openai":
		env = "OPENAI_API_KEY"
	case "gemini":
		env = "GEMINI_API_KEY"
	case "local-llm":
		return "", nil
	default:
		return "", fmt.Errorf("unknown AI provider: %s", provider)
	}

	key := c.ProviderSettings(provider).APIKey
	if key == "" {
		return "", fmt.Errorf("%s API key not found in config or environment variable %s", provider, env)
	}
	return key, nil
}

// GetTenderlyKey 获取 Tenderly 凭据，两者都为空时返回错误
func (s *Settings) GetTenderlyKey() (accessKey, bearer string, err error) {
	if s.Tenderly.AccessKey == "" && s.Tenderly.BearerToken == "" {
		return "", "", fmt.Errorf("Tenderly credentials not found in config or environment variable TENDERLY_ACCESS_KEY")
	}
	return s.Tenderly.AccessKey, s.Tenderly.BearerToken, nil
}

// GetEtherscanKey 获取 Etherscan API Key
func (s *Settings) GetEtherscanKey() (string, error) {
	if s.Etherscan.APIKey == "" {
		return "", fmt.Errorf("Etherscan API key not found in config or environment variable ETHERSCAN_API_KEY")
	}
	return s.Etherscan.APIKey, nil
}
