package s3

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // mimics the S3 ETag
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	mockBucket   = "mock-bucket"
	metaHeader   = "X-Amz-Meta-"
	mockModified = "Mon, 01 Jan 2024 00:00:00 GMT"
)

// NewMockForTests returns a Store whose client talks to an in-process fake
// S3 endpoint. It serves the Head/Get/Put/Delete/ListObjectsV2 calls the
// store issues.
func NewMockForTests() *Store {
	rt := &fakeS3{objects: make(map[string]fakeObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(defaultRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: mockBucket}
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    http.Header
}

func (o fakeObject) etag() string {
	sum := md5.Sum(o.body) //nolint:gosec // mimics the S3 ETag
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(strings.TrimPrefix(req.URL.Path, "/"+mockBucket), "/")
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req.URL.Query().Get("prefix")), nil
	}
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, nil, nil), nil
		}
		header := obj.metadata.Clone()
		header.Set("Content-Length", strconv.Itoa(len(obj.body)))
		header.Set("Content-Type", obj.contentType)
		header.Set("ETag", obj.etag())
		header.Set("Last-Modified", mockModified)
		if req.Method == http.MethodHead {
			return respond(http.StatusOK, header, nil), nil
		}
		return respond(http.StatusOK, header, obj.body), nil
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") || req.Header.Get("X-Amz-Decoded-Content-Length") != "" {
			if body, err = decodeChunked(body); err != nil {
				return respond(http.StatusBadRequest, nil, nil), nil
			}
		}
		meta := http.Header{}
		for name, values := range req.Header {
			if strings.HasPrefix(http.CanonicalHeaderKey(name), metaHeader) {
				meta[http.CanonicalHeaderKey(name)] = values
			}
		}
		obj := fakeObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: meta}
		f.objects[key] = obj
		return respond(http.StatusOK, http.Header{"Etag": {obj.etag()}}, nil), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

func (f *fakeS3) list(prefix string) *http.Response {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		obj := f.objects[k]
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>%s</ETag><LastModified>%s</LastModified></Contents>",
			k, len(obj.body), obj.etag(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, []byte(b.String()))
}

func respond(status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// decodeChunked strips aws-chunked framing: `<hex>[;ext]\r\n<data>\r\n` repeated
// until a zero-length chunk, followed by optional trailers.
func decodeChunked(raw []byte) ([]byte, error) {
	reader := bufio.NewReader(bytes.NewReader(raw))
	var out bytes.Buffer
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeField, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeField, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size %q: %w", sizeField, err)
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, reader, size); err != nil {
			return nil, err
		}
		if _, err := reader.Discard(2); err != nil {
			return nil, err
		}
	}
}
