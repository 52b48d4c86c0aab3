package artifacts

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_Put(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s, err := NewFSStore(dir)
	require.NoError(t, err)

	loc, err := s.Put(context.Background(), "Dra_Ana_2024-03-05.pdf", []byte("%PDF"), ContentTypePDF)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Dra_Ana_2024-03-05.pdf"), loc)

	b, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(b))

	_, err = os.Stat(loc + ".tmp")
	assert.True(t, os.IsNotExist(err))

	// overwrite
	_, err = s.Put(context.Background(), "Dra_Ana_2024-03-05.pdf", []byte("v2"), ContentTypePDF)
	require.NoError(t, err)
	b, _ = os.ReadFile(loc)
	assert.Equal(t, "v2", string(b))
}

func TestFSStore_Subdirectory(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	loc, err := s.Put(context.Background(), "2024-03-05/resumo.csv", []byte("a;b"), ContentTypeCSV)
	require.NoError(t, err)
	assert.FileExists(t, loc)
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"report.pdf", "report.pdf", false},
		{"a/b.pdf", "a/b.pdf", false},
		{"", "", true},
		{"../escape.pdf", "", true},
		{"/abs.pdf", "", true},
		{"a/../b.pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cleanName(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Put(t *testing.T) {
	fake := &fakeS3{}
	s := newS3Store(fake, S3Config{Bucket: "mles", Prefix: "reports/"})

	loc, err := s.Put(context.Background(), "Dr_Bruno.docx", []byte("PK"), ContentTypeDocx)
	require.NoError(t, err)
	assert.Equal(t, "s3://mles/reports/Dr_Bruno.docx", loc)
	assert.Equal(t, "mles", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "reports/Dr_Bruno.docx", aws.ToString(fake.input.Key))
	assert.Equal(t, ContentTypeDocx, aws.ToString(fake.input.ContentType))
	assert.Equal(t, int64(2), aws.ToInt64(fake.input.ContentLength))
	assert.Equal(t, "PK", string(fake.body))
}

func TestS3Store_PutError(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	s := newS3Store(fake, S3Config{Bucket: "mles"})

	_, err := s.Put(context.Background(), "x.pdf", nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, "application/octet-stream", aws.ToString(fake.input.ContentType))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, s)

	_, err = Open(ctx, Config{Backend: BackendFS})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Backend: "ftp"})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Backend: BackendS3})
	assert.Error(t, err)
}
