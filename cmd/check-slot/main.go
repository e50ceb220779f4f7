package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"critical-alerts/common/database"
	rediscommon "critical-alerts/common/redis"
	"critical-alerts/internal/config"
	"critical-alerts/internal/repository"
	"critical-alerts/internal/store"

	"go.uber.org/zap"
)

// 运维检查：打印持久化槽位中的危急通知（使用与服务相同的环境变量）
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var kv store.KV
	switch cfg.Alerts.Storage.Backend {
	case config.StoragePostgres:
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close(db)
		kv = repository.NewSlotRepository(db, zap.NewNop())
	default:
		client := rediscommon.NewRedisClient(&cfg.Redis)
		defer rediscommon.Close(client)
		if err := rediscommon.Ping(ctx, client); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		kv = store.NewRedisKV(client)
	}

	raw, err := kv.Get(ctx, cfg.Alerts.Storage.Key)
	if errors.Is(err, store.ErrSlotMiss) {
		fmt.Printf("Slot %q is empty\n", cfg.Alerts.Storage.Key)
		return
	}
	if err != nil {
		log.Fatalf("Failed to read slot: %v", err)
	}

	list := store.Decode(raw)
	if list == nil {
		fmt.Printf("Slot %q is malformed (%d bytes)\n", cfg.Alerts.Storage.Key, len(raw))
		return
	}

	fmt.Println(strings.Repeat("=", 100))
	fmt.Printf("%s (%s): %d notification(s)\n", cfg.Alerts.Storage.Key, cfg.Alerts.Storage.Backend, len(list))
	fmt.Println(strings.Repeat("=", 100))
	fmt.Printf("%-20s %-24s %-6s %-25s %s\n", "patient_id", "patient_name", "type", "timestamp", "alerts")
	fmt.Println(strings.Repeat("-", 100))

	for _, n := range list {
		alerts := make([]string, 0, len(n.Alerts))
		for _, a := range n.Alerts {
			alerts = append(alerts, fmt.Sprintf("%s=%s %s [%s, %s]", a.Parameter, a.Value, a.Unit, a.Range, a.Severity))
		}
		fmt.Printf("%-20s %-24s %-6s %-25s %s\n",
			n.PatientID, n.PatientName, n.Type, n.Timestamp.Format(time.RFC3339), strings.Join(alerts, "; "))
	}
}
