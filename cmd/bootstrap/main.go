package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"chem-rag-api/internal/config"
	"chem-rag-api/internal/wire"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 初始化 PostgreSQL
	client, cleanup, err := wire.InitializePostgresOnly(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer cleanup()

	// 3. 建表
	fmt.Println("Migrating tables: documents, segments, index_jobs...")
	if err := client.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	// 4. 存储目录
	for _, dir := range []string{cfg.Storage.UploadDir, cfg.VectorIndex.Dir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create %s: %v", dir, err)
		}
		fmt.Printf("Directory ready: %s\n", dir)
	}

	fmt.Println("Bootstrap completed successfully.")
}
