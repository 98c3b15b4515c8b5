package simbus

import (
	"fmt"
	"sync"

	"github.com/GoCodeAlone/simnode"
)

// DataWriter is a logical writer on one topic: a sample endpoint plus a
// stream-type endpoint. Declaring a stream type that crosses the
// transport size threshold rebuilds the sample endpoint under the new
// QoS profile before the declaration is published.
type DataWriter struct {
	topic     *Topic
	transport Transport
	logger    simnode.Logger

	mu           sync.Mutex
	sampleWriter SampleWriter
	streamWriter StreamTypeWriter
}

func newDataWriter(topic *Topic, transport Transport, logger simnode.Logger) (*DataWriter, error) {
	streamWriter, err := transport.CreateStreamTypeWriter(topic.Name(), topic.StreamTypeProfile())
	if err != nil {
		return nil, fmt.Errorf("creating stream type writer for topic %q: %w", topic.Name(), err)
	}
	sampleWriter, err := transport.CreateSampleWriter(topic.Name(), topic.SampleProfile())
	if err != nil {
		_ = streamWriter.Close()
		return nil, fmt.Errorf("creating sample writer for topic %q: %w", topic.Name(), err)
	}

	w := &DataWriter{
		topic:        topic,
		transport:    transport,
		logger:       logger,
		sampleWriter: sampleWriter,
		streamWriter: streamWriter,
	}

	// Announce the topic's current stream type to (late) readers.
	if err := streamWriter.Write(topic.StreamType()); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("announcing stream type on topic %q: %w", topic.Name(), err)
	}
	return w, nil
}

// Write publishes one data sample.
func (w *DataWriter) Write(sample Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sampleWriter == nil {
		return fmt.Errorf("write on closed writer: %w", simnode.ErrInvalidState)
	}
	return w.sampleWriter.Write(sample)
}

// WriteStreamType declares an updated stream type. When the update
// crosses the size threshold, the sample endpoint is recreated under
// the newly selected profile, exactly once per crossing.
func (w *DataWriter) WriteStreamType(streamType StreamType) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.streamWriter == nil {
		return fmt.Errorf("write on closed writer: %w", simnode.ErrInvalidState)
	}

	if w.topic.UpdateStreamType(streamType) {
		sampleWriter, err := w.transport.CreateSampleWriter(w.topic.Name(), w.topic.SampleProfile())
		if err != nil {
			return fmt.Errorf("recreating sample writer for topic %q: %w", w.topic.Name(), err)
		}
		_ = w.sampleWriter.Close()
		w.sampleWriter = sampleWriter
		w.logger.Debug("sample writer rebuilt after stream type update",
			"topic", w.topic.Name(), "profile", w.topic.SampleProfile().Name)
	}

	return w.streamWriter.Write(streamType)
}

// Close releases both endpoints.
func (w *DataWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sampleWriter != nil {
		_ = w.sampleWriter.Close()
		w.sampleWriter = nil
	}
	if w.streamWriter != nil {
		_ = w.streamWriter.Close()
		w.streamWriter = nil
	}
	return nil
}
