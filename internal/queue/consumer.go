// Package queue applies trusted-registry commands delivered over SQS.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/registry"
)

// ErrUnknownCommand marks a message that can never be applied.
var ErrUnknownCommand = errors.New("unknown registry command")

const retryDelay = 5 * time.Second

type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Registry is satisfied by *service.ANPRService.
type Registry interface {
	AddTrustedPlate(plate string) (registry.Mutation, error)
	RemoveTrustedPlate(plate string) (registry.Mutation, error)
}

// Command has the same shape as the websocket registry messages.
type Command struct {
	Type  string `json:"type"`
	Plate string `json:"plate"`
}

type Consumer struct {
	client      API
	queueURL    string
	waitSeconds int32
	registry    Registry
	permanent   func(error) bool
	log         zerolog.Logger
}

// NewConsumer builds a consumer. permanent reports errors that retrying
// cannot fix; such messages are deleted instead of redelivered.
func NewConsumer(client API, queueURL string, waitSeconds int32, reg Registry, permanent func(error) bool, log zerolog.Logger) *Consumer {
	if permanent == nil {
		permanent = func(error) bool { return false }
	}
	return &Consumer{
		client:      client,
		queueURL:    queueURL,
		waitSeconds: waitSeconds,
		registry:    reg,
		permanent:   permanent,
		log:         log.With().Str("component", "queue").Logger(),
	}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.log.Info().Str("queue_url", c.queueURL).Msg("registry command consumer started")
	for {
		if ctx.Err() != nil {
			c.log.Info().Msg("registry command consumer stopped")
			return
		}
		if err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.log.Error().Err(err).Msg("failed to receive messages")
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
			}
		}
	}
}

// Poll receives one batch and applies it.
func (c *Consumer) Poll(ctx context.Context) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.waitSeconds,
		VisibilityTimeout:   60,
	})
	if err != nil {
		return err
	}

	for _, msg := range out.Messages {
		id := aws.ToString(msg.MessageId)
		if msg.Body == nil {
			c.log.Warn().Str("message_id", id).Msg("dropping message with empty body")
			c.delete(ctx, msg.ReceiptHandle)
			continue
		}

		err := c.Apply(*msg.Body)
		switch {
		case err == nil:
			c.delete(ctx, msg.ReceiptHandle)
		case errors.Is(err, ErrUnknownCommand) || c.permanent(err):
			c.log.Warn().Err(err).Str("message_id", id).Msg("dropping unusable registry command")
			c.delete(ctx, msg.ReceiptHandle)
		default:
			c.log.Error().Err(err).Str("message_id", id).Msg("registry command failed, leaving for redelivery")
		}
	}
	return nil
}

// Apply decodes and executes one command body.
func (c *Consumer) Apply(body string) error {
	var cmd Command
	if err := json.Unmarshal([]byte(body), &cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownCommand, err)
	}

	var (
		m   registry.Mutation
		err error
	)
	switch cmd.Type {
	case "add_trusted_plate":
		m, err = c.registry.AddTrustedPlate(cmd.Plate)
	case "remove_trusted_plate":
		m, err = c.registry.RemoveTrustedPlate(cmd.Plate)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	if err != nil {
		return err
	}

	c.log.Info().
		Str("type", cmd.Type).
		Str("plate", cmd.Plate).
		Bool("accepted", m.Accepted).
		Int("plates", len(m.Plates)).
		Msg("applied registry command")
	return nil
}

func (c *Consumer) delete(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		return
	}
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		c.log.Error().Err(err).Msg("failed to delete message")
	}
}
