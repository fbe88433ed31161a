package s3

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/chunkvault/internal/provider"
)

// fakeAPI is an in-memory object store implementing the api subset.
type fakeAPI struct {
	objects map[string][]byte

	putErr    error
	getErr    error
	deleteErr error
	headErr   error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: map[string][]byte{}}
}

func (f *fakeAPI) PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	etag := "etag-" + *in.Key
	return &awss3.PutObjectOutput{ETag: &etag}, nil
}

func (f *fakeAPI) GetObject(ctx context.Context, in *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeAPI) DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	delete(f.objects, *in.Key)
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeAPI) HeadBucket(ctx context.Context, in *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &awss3.HeadBucketOutput{}, nil
}

func newTestProvider(t *testing.T) (*Provider, *fakeAPI) {
	t.Helper()
	fake := newFakeAPI()
	p := &Provider{
		cfg: Config{
			Region:          "us-east-1",
			Bucket:          "vault",
			AccessKeyID:     "admin",
			SecretAccessKey: "secretpassword",
			KeyPrefix:       "chunks",
			MaxChunkSize:    defaultMaxChunkSize,
		},
		client: fake,
	}
	return p, fake
}

func TestValidate(t *testing.T) {
	base := Config{
		Region: "us-east-1", Bucket: "vault",
		AccessKeyID: "a", SecretAccessKey: "s", MaxChunkSize: defaultMaxChunkSize,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing bucket", func(c *Config) { c.Bucket = "" }, true},
		{"missing region", func(c *Config) { c.Region = "" }, true},
		{"missing credentials", func(c *Config) { c.SecretAccessKey = "" }, true},
		{"chunk too small", func(c *Config) { c.MaxChunkSize = 1 }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := validate(cfg)
			if tc.wantErr {
				assert.ErrorIs(t, err, provider.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_BadJSON(t *testing.T) {
	_, err := New(json.RawMessage(`{`), true)
	assert.ErrorIs(t, err, provider.ErrInvalidConfig)
}

func TestPrepareStorage_UniquePrefixes(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	sctx1, err := p.PrepareStorage(ctx, provider.FileInfo{ID: "f1", Filename: "a"})
	require.NoError(t, err)
	sctx2, err := p.PrepareStorage(ctx, provider.FileInfo{ID: "f1", Filename: "a"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sctx1["key_prefix"], "chunks/f1-"))
	assert.NotEqual(t, sctx1["key_prefix"], sctx2["key_prefix"])
}

func TestUploadDownloadDelete_RoundTrip(t *testing.T) {
	p, fake := newTestProvider(t)
	ctx := context.Background()

	sctx, err := p.PrepareStorage(ctx, provider.FileInfo{ID: "f1", Filename: "a"})
	require.NoError(t, err)

	ref, err := p.UploadChunk(ctx, []byte("object-bytes"), sctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref["key"], sctx["key_prefix"]+"/"))
	assert.True(t, strings.HasSuffix(ref["key"], ".enc"))
	assert.NotEmpty(t, ref["etag"])
	assert.Len(t, fake.objects, 1)

	data, err := p.DownloadChunk(ctx, ref, sctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("object-bytes"), data)

	require.NoError(t, p.DeleteChunk(ctx, ref, sctx))
	assert.Empty(t, fake.objects)

	_, err = p.DownloadChunk(ctx, ref, sctx)
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestUploadChunk_MissingPrefix(t *testing.T) {
	p, _ := newTestProvider(t)
	_, err := p.UploadChunk(context.Background(), []byte("x"), provider.Context{})
	assert.ErrorIs(t, err, provider.ErrInvalidConfig)
}

func TestValidateConfig(t *testing.T) {
	p, fake := newTestProvider(t)
	assert.NoError(t, p.ValidateConfig(context.Background()))

	fake.headErr = &types.NotFound{}
	assert.ErrorIs(t, p.ValidateConfig(context.Background()), provider.ErrInvalidConfig)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(&types.NoSuchKey{}), provider.ErrNotFound)
	assert.ErrorIs(t, classify(&types.NotFound{}), provider.ErrNotFound)
	assert.ErrorIs(t, classify(io.ErrUnexpectedEOF), provider.ErrTransient)
}
