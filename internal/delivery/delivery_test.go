package delivery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

func TestLocalDir_WritesFile(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocalDir(dir)
	if err != nil {
		t.Fatalf("NewLocalDir: %v", err)
	}
	l.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }

	err = l.Deliver(context.Background(), pipeline.Delivery{Reader: strings.NewReader("clip"), Size: 4, Name: "video.mp4"})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if !strings.HasSuffix(l.LastPath, "20250304-050607-video.mp4") {
		t.Errorf("unexpected path %s", l.LastPath)
	}
	data, err := os.ReadFile(l.LastPath)
	if err != nil || string(data) != "clip" {
		t.Errorf("unexpected file contents %q (err=%v)", data, err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("stream broke") }

func TestLocalDir_RemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	l, _ := NewLocalDir(dir)

	if err := l.Deliver(context.Background(), pipeline.Delivery{Reader: failingReader{}, Name: "video.mp4"}); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no files left, found %d", len(entries))
	}
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archive_PutsObject(t *testing.T) {
	p := &fakePutter{}
	a := NewS3Archive(p, "archive-bucket", "videos")
	a.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }

	err := a.Deliver(context.Background(), pipeline.Delivery{Reader: strings.NewReader("clip"), Size: 4, Name: "video.mp4"})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if *p.input.Bucket != "archive-bucket" || *p.input.Key != "videos/2025/03/04/050607-video.mp4" {
		t.Errorf("unexpected destination %s/%s", *p.input.Bucket, *p.input.Key)
	}
	if *p.input.ContentLength != 4 || *p.input.ContentType != "video/mp4" {
		t.Errorf("unexpected length/type %d %s", *p.input.ContentLength, *p.input.ContentType)
	}
	if string(p.body) != "clip" {
		t.Errorf("unexpected body %q", p.body)
	}
}

func TestS3Archive_RequiresSize(t *testing.T) {
	a := NewS3Archive(&fakePutter{}, "b", "")
	if err := a.Deliver(context.Background(), pipeline.Delivery{Reader: strings.NewReader("x"), Size: -1}); err == nil {
		t.Error("expected error for unknown size")
	}
}

type memDeliverer struct {
	buf  bytes.Buffer
	err  error
	read int
}

func (m *memDeliverer) Deliver(_ context.Context, d pipeline.Delivery) error {
	if m.err != nil {
		return m.err
	}
	if m.read > 0 {
		_, err := io.CopyN(&m.buf, d.Reader, int64(m.read))
		return err
	}
	_, err := io.Copy(&m.buf, d.Reader)
	return err
}

func TestTee_CopiesToBoth(t *testing.T) {
	primary, archive := &memDeliverer{}, &memDeliverer{}
	tee := &Tee{Primary: primary, Archive: archive}

	payload := strings.Repeat("frame", 10000)
	if err := tee.Deliver(context.Background(), pipeline.Delivery{Reader: strings.NewReader(payload), Size: int64(len(payload))}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if primary.buf.String() != payload || archive.buf.String() != payload {
		t.Errorf("expected both sides to receive %d bytes, got %d and %d", len(payload), primary.buf.Len(), archive.buf.Len())
	}
}

func TestTee_ArchiveFailureDoesNotFailPrimary(t *testing.T) {
	primary := &memDeliverer{}
	tee := &Tee{Primary: primary, Archive: &memDeliverer{err: errors.New("bucket gone")}}

	payload := strings.Repeat("x", 200000)
	if err := tee.Deliver(context.Background(), pipeline.Delivery{Reader: strings.NewReader(payload), Size: int64(len(payload))}); err != nil {
		t.Fatalf("expected primary success, got %v", err)
	}
	if primary.buf.Len() != len(payload) {
		t.Errorf("expected %d bytes delivered, got %d", len(payload), primary.buf.Len())
	}
}

func TestTee_PrimaryFailureIsReturned(t *testing.T) {
	tee := &Tee{Primary: &memDeliverer{err: errors.New("chat unavailable")}, Archive: &memDeliverer{}}
	err := tee.Deliver(context.Background(), pipeline.Delivery{Reader: strings.NewReader("x"), Size: 1})
	if err == nil || err.Error() != "chat unavailable" {
		t.Errorf("expected primary error, got %v", err)
	}
}

func TestTee_ArchiveCompleteWhenPrimaryStopsEarly(t *testing.T) {
	primary, archive := &memDeliverer{read: 3}, &memDeliverer{}
	tee := &Tee{Primary: primary, Archive: archive}

	if err := tee.Deliver(context.Background(), pipeline.Delivery{Reader: strings.NewReader("abcdefgh"), Size: 8}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if archive.buf.String() != "abcdefgh" {
		t.Errorf("expected full archive copy, got %q", archive.buf.String())
	}
}
