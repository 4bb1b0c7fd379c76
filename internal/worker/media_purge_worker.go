package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"open-mediaserver/internal/model"
)

// MediaPurgeWorker consumes purge events and removes the blob files of
// deleted uploads from the media storage root. Row deletion has already
// happened transactionally by the time an event arrives; file cleanup is
// best-effort and a missing file is not a failure.
type MediaPurgeWorker struct {
	conn        *amqp.Connection
	storagePath string
	queueName   string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMediaPurgeWorker(conn *amqp.Connection, storagePath, queueName string) *MediaPurgeWorker {
	return &MediaPurgeWorker{
		conn:        conn,
		storagePath: storagePath,
		queueName:   queueName,
	}
}

func (w *MediaPurgeWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var purge model.MediaPurge
				if err := json.Unmarshal(d.Body, &purge); err != nil {
					log.Printf("worker decode purge event failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				w.purgeBlobs(purge)
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *MediaPurgeWorker) purgeBlobs(purge model.MediaPurge) {
	for _, blobPath := range purge.BlobPaths {
		path, err := w.resolve(blobPath)
		if err != nil {
			log.Printf("worker skip blob %q: %v", blobPath, err)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("worker remove blob %q failed: %v", blobPath, err)
		}
	}
	log.Printf("purged %d blobs for deleted account %q", len(purge.BlobPaths), purge.Username)
}

// resolve confines blob paths to the storage root.
func (w *MediaPurgeWorker) resolve(blobPath string) (string, error) {
	cleaned := filepath.Clean("/" + blobPath)
	if cleaned == "/" || strings.Contains(blobPath, "..") {
		return "", fmt.Errorf("invalid blob path")
	}
	return filepath.Join(w.storagePath, cleaned), nil
}

func (w *MediaPurgeWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
