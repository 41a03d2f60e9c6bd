// Package grader talks to the grading backend: runs are dispatched through
// Kafka and graded resources are read back from the results bucket.
package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"judgegate/internal/common/mq"
	"judgegate/internal/common/storage"
	"judgegate/internal/run/model"
)

const (
	defaultGradeTopic   = "run.grade"
	defaultRejudgeTopic = "run.rejudge"

	headerKind = "x-run-kind"
)

// Config configures the grading backend client.
type Config struct {
	GradeTopic    string        `yaml:"gradeTopic"`
	RejudgeTopic  string        `yaml:"rejudgeTopic"`
	ResultsBucket string        `yaml:"resultsBucket"`
	Timeout       time.Duration `yaml:"timeout"`
}

// GradeMessage is the payload published for a new run.
type GradeMessage struct {
	RunID        int64                `json:"run_id"`
	GUID         string               `json:"guid"`
	ProblemAlias string               `json:"problem_alias"`
	Version      string               `json:"version"`
	Commit       string               `json:"commit"`
	Language     string               `json:"language"`
	Source       string               `json:"source"`
	Type         model.SubmissionType `json:"type"`
	ProblemsetID *int64               `json:"problemset_id,omitempty"`
}

// RejudgeMessage asks the backend to re-queue runs.
type RejudgeMessage struct {
	RunIDs []int64 `json:"run_ids"`
	Debug  bool    `json:"debug"`
}

// Client dispatches runs and reads their results.
type Client struct {
	producer mq.Producer
	objects  storage.ObjectStorage
	cfg      Config
}

// NewClient creates a grading backend client.
func NewClient(producer mq.Producer, objects storage.ObjectStorage, cfg Config) (*Client, error) {
	if producer == nil {
		return nil, fmt.Errorf("producer is required")
	}
	if objects == nil {
		return nil, fmt.Errorf("object storage is required")
	}
	if cfg.ResultsBucket == "" {
		return nil, fmt.Errorf("results bucket is required")
	}
	if cfg.GradeTopic == "" {
		cfg.GradeTopic = defaultGradeTopic
	}
	if cfg.RejudgeTopic == "" {
		cfg.RejudgeTopic = defaultRejudgeTopic
	}
	return &Client{producer: producer, objects: objects, cfg: cfg}, nil
}

// Grade hands a run to the backend. It returns once the broker acknowledged
// the message.
func (c *Client) Grade(ctx context.Context, msg GradeMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode grade message: %w", err)
	}
	message := mq.NewMessage(msg.GUID, body)
	message.SetHeader(headerKind, "grade")
	return c.publish(ctx, c.cfg.GradeTopic, message)
}

// Rejudge asks the backend to grade the given runs again.
func (c *Client) Rejudge(ctx context.Context, runIDs []int64, debug bool) error {
	if len(runIDs) == 0 {
		return nil
	}
	body, err := json.Marshal(RejudgeMessage{RunIDs: runIDs, Debug: debug})
	if err != nil {
		return fmt.Errorf("encode rejudge message: %w", err)
	}
	message := mq.NewMessage(strconv.FormatInt(runIDs[0], 10), body)
	message.SetHeader(headerKind, "rejudge")
	return c.publish(ctx, c.cfg.RejudgeTopic, message)
}

func (c *Client) publish(ctx context.Context, topic string, message *mq.Message) error {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	if err := c.producer.Publish(ctx, topic, message); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// ResourceKey is the results bucket key of a run resource.
func ResourceKey(runID int64, filename string) string {
	return fmt.Sprintf("%d/%s", runID, filename)
}

// OpenRunResource streams a graded resource. A missing resource yields
// storage.ErrObjectNotFound.
func (c *Client) OpenRunResource(ctx context.Context, runID int64, filename string) (io.ReadCloser, error) {
	reader, _, err := c.objects.GetObject(ctx, c.cfg.ResultsBucket, ResourceKey(runID, filename))
	if err != nil {
		return nil, err
	}
	return reader, nil
}
