package internal

import (
	"fmt"
	"os"

	"github.com/DreamCats/kbindex/internal/config"
)

// LoadConfig 从指定路径读取并解析 YAML 配置文件。
// 返回填充后的 *config.Config 或解析错误。
func LoadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// PrintConfigExample 向 stderr 打印一份完整的 YAML 配置示例。
// 供用户快速创建自定义配置文件。
func PrintConfigExample() {
	homeDir, _ := os.UserHomeDir()
	configPath := fmt.Sprintf("%s/.kbindex/config/kbindex.yaml", homeDir)

	fmt.Fprintf(os.Stderr, `Create a configuration file at %s:

store:
  dir: ./kb_store              # Index and blob storage

data:
  dir: ./kb_data               # Documents to ingest
  # exclude:
  #   - "**/*.tmp"

embedding:
  provider: openai
  # api_key may be omitted when OPENAI_API_KEY is set
  model: text-embedding-3-small
  dimensions: 1536
  batch_size: 20
  max_chars: 8000

llm:
  model: gpt-4o-mini           # Query expansion and chart classification
  classify_charts: true

retrieval:
  top_k: 3

Usage:
  1. Create the config file
  2. Put documents in the data directory
  3. Run: kbindex ingest
  4. Ask: kbindex query "your question"
`, configPath)
}
