package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/psds-microservice/chat-orchestrator/internal/config"
	"github.com/psds-microservice/chat-orchestrator/internal/database"
	"github.com/psds-microservice/chat-orchestrator/internal/model"
	"github.com/psds-microservice/chat-orchestrator/internal/presence"
	"github.com/psds-microservice/chat-orchestrator/internal/push"
	"github.com/psds-microservice/chat-orchestrator/internal/queue"
	"github.com/spf13/cobra"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Retry auto-assignment for every waiting queue entry (after a restart or staff coming online)",
	RunE:  runRequeue,
}

func init() {
	rootCmd.AddCommand(requeueCmd)
}

func runRequeue(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	_ = godotenv.Load("../../.env") // repo root when running from bin/
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	conn, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}

	publisher := push.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopicChat)
	defer publisher.Close()
	tracker := presence.NewTracker(conn, cfg.Presence.MaxWorkload)
	q := queue.New(conn, tracker, publisher)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var entries []model.HandoffQueueEntry
	if err := conn.WithContext(ctx).
		Where("assigned_staff_id = '' AND resolved_at IS NULL").
		Order("priority DESC, enqueued_at ASC").
		Find(&entries).Error; err != nil {
		return fmt.Errorf("list waiting entries: %w", err)
	}
	log.Printf("requeue: found %d waiting entries", len(entries))

	assigned := 0
	for i := range entries {
		ok, err := q.TryAutoAssign(ctx, entries[i].ID)
		if err != nil {
			log.Printf("requeue: entry %d: %v", entries[i].ID, err)
			continue
		}
		if ok {
			assigned++
		}
		if (i+1)%50 == 0 || i == len(entries)-1 {
			log.Printf("requeue: processed %d/%d entries", i+1, len(entries))
		}
	}
	log.Printf("requeue: done, assigned %d of %d entries", assigned, len(entries))
	return nil
}
