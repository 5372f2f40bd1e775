package filearchive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*s3.PutObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*s3.HeadObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

var notFound = &smithy.GenericAPIError{Code: "NotFound", Message: "not found"}

func newTestArchiver(client S3API) *S3 {
	a := NewS3(client, "bucket", "imports")
	a.now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestS3_Key(t *testing.T) {
	a := newTestArchiver(nil)

	tests := []struct {
		name string
		file string
		want string
	}{
		{name: "plain", file: "arxiv.xlsx", want: "imports/2024/03/09/abc-arxiv.xlsx"},
		{name: "unix path stripped", file: "/tmp/x/arxiv.csv", want: "imports/2024/03/09/abc-arxiv.csv"},
		{name: "windows path stripped", file: `C:\Users\me\arxiv.xls`, want: "imports/2024/03/09/abc-arxiv.xls"},
		{name: "empty name", file: "", want: "imports/2024/03/09/abc-upload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Key(File{Name: tt.file, Checksum: "abc"}))
		})
	}
}

func TestS3_ArchivePutsNewObject(t *testing.T) {
	client := new(mockS3)
	a := newTestArchiver(client)
	file := File{Name: "a.csv", ContentType: "text/csv", Checksum: "abc", Data: []byte("T/R\n1\n")}

	client.On("HeadObject", mock.Anything, mock.Anything).Return(nil, notFound)
	var body []byte
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "bucket" &&
			*in.Key == "imports/2024/03/09/abc-a.csv" &&
			*in.ContentType == "text/csv" &&
			in.Metadata["checksum"] == "abc"
	})).Run(func(args mock.Arguments) {
		body, _ = io.ReadAll(args.Get(1).(*s3.PutObjectInput).Body)
	}).Return(&s3.PutObjectOutput{}, nil)

	key, err := a.Archive(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, "imports/2024/03/09/abc-a.csv", key)
	assert.Equal(t, "T/R\n1\n", string(body))
	client.AssertExpectations(t)
}

func TestS3_ArchiveSkipsExisting(t *testing.T) {
	client := new(mockS3)
	a := newTestArchiver(client)

	client.On("HeadObject", mock.Anything, mock.Anything).Return(&s3.HeadObjectOutput{}, nil)

	key, err := a.Archive(context.Background(), File{Name: "a.csv", Checksum: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "imports/2024/03/09/abc-a.csv", key)
	client.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything)
}

func TestS3_ArchiveErrors(t *testing.T) {
	t.Run("head failure", func(t *testing.T) {
		client := new(mockS3)
		client.On("HeadObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

		_, err := newTestArchiver(client).Archive(context.Background(), File{Name: "a.csv", Checksum: "abc"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access denied")
	})

	t.Run("put failure", func(t *testing.T) {
		client := new(mockS3)
		client.On("HeadObject", mock.Anything, mock.Anything).Return(nil, notFound)
		client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("slow down"))

		_, err := newTestArchiver(client).Archive(context.Background(), File{Name: "a.csv", Checksum: "abc"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "slow down")
	})

	t.Run("missing checksum", func(t *testing.T) {
		_, err := newTestArchiver(new(mockS3)).Archive(context.Background(), File{Name: "a.csv"})
		assert.Error(t, err)
	})
}

func TestNoop(t *testing.T) {
	key, err := Noop{}.Archive(context.Background(), File{})
	assert.NoError(t, err)
	assert.Empty(t, key)
}
