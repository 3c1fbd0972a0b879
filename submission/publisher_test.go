package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/hazyhaar/originality/scoring"
)

func TestKafkaPublisher_Publish(t *testing.T) {
	// WHAT: an outcome event goes out as JSON on the configured topic.
	// WHY: downstream grade books parse this payload.
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev CompletedEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Type != EventCompleted || ev.SubmissionID != "sub-1" || ev.Score != 42.5 || ev.Status != scoring.StatusScored {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		return nil
	})
	pub := NewKafkaPublisherWithProducer(sp, "originality.submissions")

	out := &Outcome{
		ID:           "sub-1",
		WordCount:    120,
		OriginalPath: "c/a/0123.txt",
		ReportPath:   "c/a/f-report.txt",
		Duration:     1500 * time.Millisecond,
		Result:       &scoring.Result{Score: 42.5, Status: scoring.StatusScored, Provider: "RapidAPI Plagiarism Checker"},
	}
	ev := newCompletedEvent(Upload{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "f.txt"}, out, testNow)
	if ev.DurationMs != 1500 {
		t.Errorf("DurationMs = %d", ev.DurationMs)
	}
	if err := pub.Publish(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if err := pub.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestKafkaPublisher_SendFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
	pub := NewKafkaPublisherWithProducer(sp, "t")
	defer pub.Close()

	err := pub.Publish(context.Background(), CompletedEvent{Type: EventCompleted, SubmissionID: "sub-2"})
	if !errors.Is(err, sarama.ErrNotLeaderForPartition) {
		t.Fatalf("err = %v", err)
	}
}

func TestKafkaPublisher_CancelledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	pub := NewKafkaPublisherWithProducer(sp, "t")
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, CompletedEvent{SubmissionID: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestSubmit_PublishesToKafka(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndSucceed()
	p, _ := newTestPipeline(t, WithPublisher(NewKafkaPublisherWithProducer(sp, "t")))
	if _, err := p.Submit(context.Background(), Upload{CourseName: "c", AssignmentTitle: "a", OriginalFilename: "f.txt", Content: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	if err := sp.Close(); err != nil {
		t.Fatal(err)
	}
}
