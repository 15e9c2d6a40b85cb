package localstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3ProviderUsesPrefix(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	p := NewS3FileProvider(fake, "bucket", "console/alice")

	require.NoError(t, p.Write(ctx, "login.value", []byte("x")))
	_, ok := fake.objects["bucket/console/alice/login.value"]
	assert.True(t, ok)
}

func TestS3NotFoundDetection(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	p := NewS3FileProvider(fake, "bucket", "")

	fake.getErr = &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"}
	_, err := p.Read(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	fake.getErr = &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}
	_, err = p.Read(ctx, "missing")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
