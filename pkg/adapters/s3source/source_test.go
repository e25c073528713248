package s3source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
	inputs  []*s3.GetObjectInput
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.inputs = append(f.inputs, in)
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func TestParseLocation(t *testing.T) {
	bucket, key, err := ParseLocation("s3://media/videos/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, "media", bucket)
	assert.Equal(t, "videos/clip.mp4", key)

	for _, bad := range []string{"/tmp/x.mp4", "s3://", "s3://bucket", "s3://bucket/", "s3://bucket/dir/"} {
		_, _, err := ParseLocation(bad)
		assert.Error(t, err, bad)
	}
}

func TestSource_Open(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"media/clip.webm": []byte("webm-bytes")}}
	src := NewWithClient(fake, nil)

	assert.True(t, src.Handles("s3://media/clip.webm"))
	assert.False(t, src.Handles("clip.webm"))

	r, size, err := src.Open(context.Background(), "s3://media/clip.webm")
	require.NoError(t, err)
	defer r.Close()
	data, _ := io.ReadAll(r)
	assert.Equal(t, "webm-bytes", string(data))
	assert.Equal(t, int64(10), size)
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "clip.webm", *fake.inputs[0].Key)

	_, _, err = src.Open(context.Background(), "s3://media/missing.mp4")
	assert.ErrorContains(t, err, "NoSuchKey")
}

func TestNew_RequiresRegion(t *testing.T) {
	t.Setenv("AWS_DEFAULT_REGION", "")
	_, err := New(Config{}, nil)
	assert.Error(t, err)

	src, err := New(Config{Region: "eu-west-1", AccessKeyID: "id", SecretAccessKey: "secret"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, src)
}
