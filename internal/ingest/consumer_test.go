package ingest

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/irisdrone/echallan/internal/logging"
	"github.com/irisdrone/echallan/internal/metrics"
	"github.com/irisdrone/echallan/internal/models"
	"github.com/irisdrone/echallan/internal/natsserver"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startNATS(t *testing.T) *natsserver.EmbeddedNATS {
	t.Helper()
	ns, err := natsserver.New(natsserver.Config{Host: "127.0.0.1", Port: -1}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestConsumerRepliesWithOutcome(t *testing.T) {
	ns := startNATS(t)
	p := newPipeline(t, false)

	consumer := NewConsumer(ns.Conn(), p.coord, ConsumerOptions{
		Subject:    "test.detections",
		QueueGroup: "test-workers",
		Workers:    2,
	}, logging.Discard(), metrics.New())
	require.NoError(t, consumer.Start())
	t.Cleanup(consumer.Stop)

	client, err := nats.Connect(ns.Address())
	require.NoError(t, err)
	defer client.Close()

	msg, err := client.Request("test.detections", []byte(noHelmetEvent), 5*time.Second)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(msg.Data, &resp))
	assert.Equal(t, StatusChallanCreated, resp.Status)
	assert.NotEmpty(t, resp.ChallanNo)
	assert.NotEmpty(t, resp.EventID)

	msg, err = client.Request("test.detections", []byte(`{"timestamp":"not a time"}`), 5*time.Second)
	require.NoError(t, err)
	var errResp map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &errResp))
	assert.Equal(t, "error", errResp["status"])
	assert.Equal(t, int64(1), p.count(t, &models.ViolationLog{}))
}

func TestIssuedPublisherAnnouncesChallan(t *testing.T) {
	ns := startNATS(t)

	client, err := nats.Connect(ns.Address())
	require.NoError(t, err)
	defer client.Close()
	sub, err := client.SubscribeSync("test.issued")
	require.NoError(t, err)
	require.NoError(t, client.Flush())

	pub := NewIssuedPublisher(ns.Conn(), "test.issued", logging.Discard())
	pub.PublishIssued(&models.Citation{ChallanNo: "CH20251028-ABCDEF123456", VehicleNo: "MH01AB1234"})

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	var got models.Citation
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "CH20251028-ABCDEF123456", got.ChallanNo)
}

func TestStopProcessesBufferedMessages(t *testing.T) {
	p := newPipeline(t, false)
	consumer := NewConsumer(nil, p.coord, ConsumerOptions{Workers: 2, QueueSize: 8}, logging.Discard(), metrics.New())

	for i := 0; i < 5; i++ {
		body := fmt.Sprintf(`{"source":"camera_1","timestamp":"2025-10-28T18:00:0%dZ","detection":{"class":"NoHelmet","confidence":0.6},"vehicle_no":"MH01AB1234"}`, i)
		consumer.msgs <- &nats.Msg{Subject: "test.detections", Data: []byte(body)}
	}
	for i := 0; i < 2; i++ {
		consumer.wg.Add(1)
		go consumer.worker(i)
	}
	consumer.Stop()

	assert.Empty(t, consumer.msgs)
	assert.Equal(t, int64(5), p.count(t, &models.ViolationLog{}))
	assert.Equal(t, int64(5), p.count(t, &models.Citation{}))
}
