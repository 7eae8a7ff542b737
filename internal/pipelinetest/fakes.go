// Package pipelinetest provides in-memory collaborators for exercising the
// pipeline components without cloud services.
package pipelinetest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/your-org/vidpress/internal/pipeline"
	"github.com/your-org/vidpress/pkg/notify"
	"github.com/your-org/vidpress/pkg/storage/objectstore"
)

// Store is an in-memory objectstore.Client that tracks sizes only.
type Store struct {
	mu      sync.Mutex
	objects map[objectstore.Ref]int64

	// StatSize, when set for a ref, overrides the size Stat reports.
	StatSize map[objectstore.Ref]int64
	StatErr  error
	PutErr   error
	CopyErr  error

	Puts    int
	Copies  int
	Deletes int
}

var _ objectstore.Client = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		objects:  map[objectstore.Ref]int64{},
		StatSize: map[objectstore.Ref]int64{},
	}
}

// Seed places an object of the given size.
func (s *Store) Seed(ref objectstore.Ref, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ref] = size
}

// Has reports whether ref exists.
func (s *Store) Has(ref objectstore.Ref) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[ref]
	return ok
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *Store) PutStream(_ context.Context, ref objectstore.Ref, r io.Reader, _ objectstore.PutOptions) (int64, error) {
	if s.PutErr != nil {
		return 0, s.PutErr
	}
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ref] = n
	s.Puts++
	return n, nil
}

func (s *Store) Stat(_ context.Context, ref objectstore.Ref) (objectstore.ObjectInfo, error) {
	if s.StatErr != nil {
		return objectstore.ObjectInfo{}, s.StatErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	size, ok := s.objects[ref]
	if !ok {
		return objectstore.ObjectInfo{}, fmt.Errorf("stat %s: %w", ref, objectstore.ErrNotFound)
	}
	if override, ok := s.StatSize[ref]; ok {
		size = override
	}
	return objectstore.ObjectInfo{Size: size}, nil
}

func (s *Store) Copy(_ context.Context, dst, src objectstore.Ref) error {
	if s.CopyErr != nil {
		return s.CopyErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	size, ok := s.objects[src]
	if !ok {
		return fmt.Errorf("copy %s: %w", src, objectstore.ErrNotFound)
	}
	s.objects[dst] = size
	if override, ok := s.StatSize[src]; ok {
		s.StatSize[dst] = override
	}
	s.Copies++
	return nil
}

func (s *Store) Delete(_ context.Context, ref objectstore.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref)
	s.Deletes++
	return nil
}

func (s *Store) URL(ref objectstore.Ref) string {
	return "https://" + ref.Bucket + ".example.com/" + ref.Key
}

func (s *Store) Close() error { return nil }

// Notifier records every message it is asked to send.
type Notifier struct {
	mu       sync.Mutex
	Messages []notify.Message
	Err      error
}

func (n *Notifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Messages = append(n.Messages, msg)
	return n.Err
}

// Publisher captures record envelopes published to the records topic.
type Publisher struct {
	mu        sync.Mutex
	Envelopes []pipeline.RecordEnvelope
	Keys      []string
	Err       error
}

func (p *Publisher) PublishJSON(_ context.Context, key string, payload any, _ map[string]string) error {
	if p.Err != nil {
		return p.Err
	}
	// Round-trip through JSON so tests observe exactly what goes on the wire.
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var env pipeline.RecordEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Envelopes = append(p.Envelopes, env)
	p.Keys = append(p.Keys, key)
	return nil
}
