package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	body        []byte
	contentType string
	modified    time.Time
}

// fakeS3 is an in-memory bucket that pages ListObjectsV2 two keys at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]fakeObject{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{body: body, contentType: aws.ToString(in.ContentType), modified: time.Now()}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(o.body))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(o.body)))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > 2 {
		keys = keys[:2]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[1])
	}
	for _, k := range keys {
		o := f.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(o.body))),
			LastModified: aws.Time(o.modified),
		})
	}
	return out, nil
}

func TestS3PutAndOpen(t *testing.T) {
	fake := newFakeS3()
	st := NewS3(fake, "bucket", "/uploads/")
	ctx := context.Background()

	n, err := st.Put(ctx, "x.webp", bytes.NewReader([]byte("webp bytes")))
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	obj, ok := fake.objects["uploads/x.webp"]
	require.True(t, ok, "expected key under prefix")
	assert.Equal(t, "image/webp", obj.contentType)

	rc, err := st.Open(ctx, "x.webp")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "webp bytes", string(got))
}

func TestS3MissingObjects(t *testing.T) {
	st := NewS3(newFakeS3(), "bucket", "")
	ctx := context.Background()

	_, err := st.Open(ctx, "missing.webp")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.Delete(ctx, "missing.webp"), ErrNotFound)
}

func TestS3Delete(t *testing.T) {
	fake := newFakeS3()
	st := NewS3(fake, "bucket", "")
	ctx := context.Background()

	_, err := st.Put(ctx, "gone.webp", strings.NewReader("x"))
	require.NoError(t, err)
	require.NoError(t, st.Delete(ctx, "gone.webp"))
	assert.Empty(t, fake.objects)
}

func TestS3ListPaginates(t *testing.T) {
	fake := newFakeS3()
	st := NewS3(fake, "bucket", "uploads")
	ctx := context.Background()

	for _, name := range []string{"a.webp", "b.webp", "c.webp", "d.webp", "e.webp"} {
		_, err := st.Put(ctx, name, strings.NewReader(name))
		require.NoError(t, err)
	}
	// Outside the prefix.
	fake.objects["other/z.webp"] = fakeObject{body: []byte("z")}

	objects, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 5)
	for _, o := range objects {
		assert.Equal(t, int64(6), o.Size)
		assert.NotEqual(t, "z.webp", o.Name)
	}
}

func TestS3RejectsUnsafeNames(t *testing.T) {
	st := NewS3(newFakeS3(), "bucket", "")

	_, err := st.Put(context.Background(), "../x.webp", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidName)
}
