// ingest/consumer.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/mmp/avmrms/mrms"
	"github.com/mmp/avmrms/scan"
	"github.com/mmp/avmrms/wxlog"
)

// Message is one queue delivery: an object key plus a handle the consumer
// uses to acknowledge it after durable hand-off.
type Message struct {
	Body          string
	ReceiptHandle string
}

// Queue abstracts the at-least-once notification source. The
// production implementation wraps SQS; tests use FakeQueue.
type Queue interface {
	Receive(ctx context.Context) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// SQSQueue adapts an SQS queue to Queue using long polling.
type SQSQueue struct {
	Client   *sqs.Client
	QueueURL string
}

func NewSQSQueue(client *sqs.Client, queueURL string) *SQSQueue {
	return &SQSQueue{Client: client, QueueURL: queueURL}
}

func (q *SQSQueue) Receive(ctx context.Context) ([]Message, error) {
	out, err := q.Client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.QueueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameSentTimestamp,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}
	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{Body: aws.ToString(m.Body), ReceiptHandle: aws.ToString(m.ReceiptHandle)})
	}
	return msgs, nil
}

func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.QueueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete: %w", err)
	}
	return nil
}

// FakeQueue is an in-memory Queue double for tests: Enqueue appends a
// message body, Receive drains everything currently buffered.
type FakeQueue struct {
	pending []Message
	deleted []string
	nextID  int
}

func NewFakeQueue() *FakeQueue { return &FakeQueue{} }

func (q *FakeQueue) Enqueue(body string) {
	q.nextID++
	q.pending = append(q.pending, Message{Body: body, ReceiptHandle: fmt.Sprintf("fake-%d", q.nextID)})
}

func (q *FakeQueue) Receive(ctx context.Context) ([]Message, error) {
	out := q.pending
	q.pending = nil
	return out, nil
}

func (q *FakeQueue) Delete(ctx context.Context, receiptHandle string) error {
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

func (q *FakeQueue) Deleted() []string { return q.deleted }

// Consumer drains a Queue, parses each message body as an object key, and
// hands recognized keys off to the scheduler. A message is only acked
// after ObserveReflectivity/ObserveAux has durably recorded it.
type Consumer struct {
	Queue Queue
	Sched *scan.Scheduler
	Lg    *wxlog.Logger

	// Dispatch is invoked whenever a scan becomes ready, so the caller can
	// enqueue pipeline work without the consumer importing objstore/Pipeline.
	Dispatch func(p *scan.Pending)

	// EchoTop handles the four EchoTop_{18,30,50,60} families, which
	// publish independently of the volumetric reflectivity stack and
	// bypass the pending-scan scheduler entirely. Nil disables echo-top
	// ingestion (messages for those families are just acknowledged).
	EchoTop *EchoTopIngester
}

// Run polls the queue until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := c.Queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if c.Lg != nil {
				c.Lg.Warnf("ingest: queue receive failed, retrying: %v", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, m := range msgs {
			c.handle(ctx, m)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m Message) {
	key, err := mrms.ParseObjectKey(m.Body)
	if err != nil {
		if c.Lg != nil {
			c.Lg.Warnf("ingest: unrecognized object key %q, acknowledging and dropping: %v", m.Body, err)
		}
		c.ack(ctx, m)
		return
	}

	if mrms.IsEchoTopFamily(key.Family) {
		if c.EchoTop != nil {
			if err := c.EchoTop.Ingest(ctx, key); err != nil && c.Lg != nil {
				c.Lg.Warnf("ingest: echo-top ingest failed for %s: %v", key, err)
			}
		}
		c.ack(ctx, m)
		return
	}

	now := time.Now().UTC()
	var p *scan.Pending
	if key.Family == mrms.ReflectivityQC {
		p = c.Sched.ObserveReflectivity(key.ScanTime, key.Level, now)
	} else {
		p = c.Sched.ObserveAux(key.ScanTime, key.Family, key.ScanTime, key.Level, now)
	}
	c.ack(ctx, m)

	if p.State == scan.Ready && c.Dispatch != nil {
		c.Dispatch(p)
	}
}

func (c *Consumer) ack(ctx context.Context, m Message) {
	if err := c.Queue.Delete(ctx, m.ReceiptHandle); err != nil && c.Lg != nil {
		c.Lg.Warnf("ingest: failed to delete acknowledged message: %v", err)
	}
}
