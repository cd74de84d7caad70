package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"travelog-backend/internal/bootstrap"
	"travelog-backend/internal/shared/config"
	"travelog-backend/internal/shared/metrics"
	"travelog-backend/internal/shared/telemetry"
	"travelog-backend/internal/workerproc"
)

const (
	defaultRegion            = "us-east-1"
	defaultVisibilitySeconds = 60
)

func main() {
	cfg := config.Load()
	cfg.Process = "worker"

	queueURL := cfg.SQSQueueURL
	if queueURL == "" {
		log.Fatal("TL_SQS_QUEUE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	visibilitySeconds := envInt("TL_SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)

	region := cfg.AWSRegion
	if region == "" {
		region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	app.RunProber()

	log.Printf("worker started queue=%s visibility=%ds", queueURL, visibilitySeconds)

	for ctx.Err() == nil {
		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break
			}
			log.Printf("receive message: %v", err)
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range resp.Messages {
			handleMessage(ctx, sqsClient, queueURL, app.Coordinator, msg)
		}
	}

	log.Printf("shutdown requested, cancelling in-flight enrichment")
	if err := app.Close(); err != nil {
		log.Printf("close: %v", err)
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// handleMessage dispatches one message. Dispatch only schedules work, so the
// message is deleted once scheduled; malformed messages are deleted as unrecoverable.
func handleMessage(ctx context.Context, client sqsAPI, queueURL string, d workerproc.Dispatcher, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	metrics.IncQueueMessage("received")

	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, "", "")
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		var unknown workerproc.ErrUnknownKind
		var missing workerproc.ErrMissingCityID
		switch {
		case errors.As(err, &unknown):
			fields["request_id"] = unknown.RequestID
			fields["kind"] = unknown.Kind
		case errors.As(err, &missing):
			fields["request_id"] = missing.RequestID
		}
		telemetry.Error("worker.message.invalid", fields)
		if deleteMessage(ctx, client, queueURL, msg, "", "") {
			metrics.IncQueueMessage("dropped")
		}
		return
	}

	fields := baseFields(msg, decoded.CityID, decoded.RequestID)
	fields["kind"] = decoded.Kind
	if err := workerproc.Dispatch(ctx, d, decoded); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.message.failed", fields)
		metrics.IncQueueMessage("failed")
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, decoded.CityID, decoded.RequestID) {
		telemetry.Info("worker.message.dispatched", fields)
		metrics.IncQueueMessage("dispatched")
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, cityID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, cityID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.message.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, cityID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.message.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, cityID, requestID string) map[string]any {
	fields := map[string]any{
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(cityID) != "" {
		fields["city_id"] = cityID
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
